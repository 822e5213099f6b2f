// Package wikiqa provides a Go client for the wikiqa HTTP API.
//
//	client, _ := wikiqa.New("http://localhost:8501",
//	    wikiqa.WithAPIKey(os.Getenv("WIKIQA_API_KEY")),
//	    wikiqa.WithTimeout(60*time.Second),
//	)
//	answer, err := client.Ask(ctx, "대서양은 몇 번째로 큰 바다인가?")
//	if errors.Is(err, wikiqa.ErrNoRelevantDocument) {
//	    // nothing indexed matches the question
//	}
//	fmt.Println(answer.Answer)
//	for _, s := range answer.Sources {
//	    fmt.Printf("%s %.2f\n", s.Title, s.Score)
//	}
package wikiqa
