package domain

// Answer is the outcome of one successful pipeline run.
type Answer struct {
	ID          string
	Question    string
	Translation string
	// Choices holds every completion returned by the answer stage; Choices[0] is the answer.
	Choices []string
	Sources []Hit
	Usage   Usage
}

// Text returns the primary answer.
func (a Answer) Text() string {
	if len(a.Choices) == 0 {
		return ""
	}
	return a.Choices[0]
}

// Usage sums provider tokens consumed by one request.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Add accumulates another usage record.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}
