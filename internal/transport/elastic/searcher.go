// Package elastic runs approximate kNN queries against the article vector index.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"

	"github.com/kailas-cloud/wikiqa/internal/domain"
	"github.com/kailas-cloud/wikiqa/internal/metrics"
)

const providerName = "elasticsearch"

// sourceFields are the stored article fields returned for every hit.
var sourceFields = []string{"title", "url", "text"}

// Config holds cluster connection and index settings.
type Config struct {
	CloudID     string
	APIKey      string
	Addresses   []string // used instead of CloudID when set
	Index       string
	VectorField string
	Timeout     time.Duration
	Transport   http.RoundTripper
}

// Searcher queries a dense vector index.
type Searcher struct {
	es          *elasticsearch.Client
	index       string
	vectorField string
	logger      *zap.Logger
}

// NewSearcher creates an Elasticsearch client. No request is made yet.
func NewSearcher(cfg Config, logger *zap.Logger) (*Searcher, error) {
	// Every request is attempted once; failures surface to the caller.
	esCfg := elasticsearch.Config{
		APIKey:       cfg.APIKey,
		Transport:    cfg.Transport,
		DisableRetry: true,
	}
	if len(cfg.Addresses) > 0 {
		esCfg.Addresses = cfg.Addresses
	} else {
		esCfg.CloudID = cfg.CloudID
	}
	if esCfg.Transport == nil && cfg.Timeout > 0 {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.ResponseHeaderTimeout = cfg.Timeout
		esCfg.Transport = t
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: elasticsearch client: %w", domain.ErrConfiguration, err)
	}

	index := cfg.Index
	if index == "" {
		index = domain.DefaultIndex
	}
	field := cfg.VectorField
	if field == "" {
		field = domain.DefaultVectorField
	}

	return &Searcher{es: es, index: index, vectorField: field, logger: logger}, nil
}

type knnClause struct {
	Field         string    `json:"field"`
	QueryVector   []float32 `json:"query_vector"`
	K             int       `json:"k"`
	NumCandidates int       `json:"num_candidates"`
}

type searchRequest struct {
	KNN    knnClause `json:"knn"`
	Size   int       `json:"size"`
	Source []string  `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64 `json:"_score"`
			Source struct {
				Title string `json:"title"`
				URL   string `json:"url"`
				Text  string `json:"text"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type errorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// KNN returns up to q.K hits ordered as the engine ranks them.
func (s *Searcher) KNN(ctx context.Context, q domain.KNNQuery) ([]domain.Hit, error) {
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("knn: empty query vector: %w", domain.ErrProvider)
	}

	body, err := json.Marshal(searchRequest{
		KNN: knnClause{
			Field:         s.vectorField,
			QueryVector:   q.Vector,
			K:             q.K,
			NumCandidates: q.NumCandidates,
		},
		// size defaults to 10 in the engine and would truncate k above it.
		Size:   q.K,
		Source: sourceFields,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal knn query: %w", err)
	}

	start := time.Now()

	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(s.index),
		s.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		s.recordFailure("transport")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("knn search: %w", ctxErr)
		}
		return nil, fmt.Errorf("knn search: %w: %w", err, domain.ErrProvider)
	}
	defer res.Body.Close()

	if res.IsError() {
		s.recordFailure("api_error")
		return nil, parseError(res.StatusCode, res.Body)
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		s.recordFailure("decode")
		return nil, fmt.Errorf("decode knn response: %w: %w", err, domain.ErrProvider)
	}

	duration := time.Since(start)
	metrics.ProviderRequestsTotal.WithLabelValues(providerName, "knn", s.index, "success").Inc()
	metrics.ProviderRequestDuration.WithLabelValues(providerName, "knn", s.index).Observe(duration.Seconds())

	hits := make([]domain.Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, domain.NewHit(h.Source.Title, h.Source.URL, h.Source.Text, h.Score))
	}

	s.logger.Debug("Knn search finished",
		zap.String("index", s.index),
		zap.Int("k", q.K),
		zap.Int("num_candidates", q.NumCandidates),
		zap.Int("hits", len(hits)),
		zap.Duration("duration", duration),
	)

	return hits, nil
}

// Ping checks the cluster answers with valid credentials.
func (s *Searcher) Ping(ctx context.Context) error {
	res, err := s.es.Info(s.es.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: elasticsearch info: %w", domain.ErrConnectivity, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%w: %w", domain.ErrConnectivity, parseError(res.StatusCode, res.Body))
	}
	return nil
}

// HealthCheck implements domain.HealthChecker.
func (s *Searcher) HealthCheck(ctx context.Context) error {
	return s.Ping(ctx)
}

// WaitForReady pings until the cluster answers or timeout elapses.
func (s *Searcher) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastErr error
	for {
		if lastErr = s.Ping(ctx); lastErr == nil {
			return nil
		}
		// Credential errors will not fix themselves.
		if errors.Is(lastErr, errUnauthorized) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("elasticsearch not ready after %s: %w", timeout, lastErr)
		case <-ticker.C:
		}
	}
}

// Index returns the queried index name.
func (s *Searcher) Index() string {
	return s.index
}

func (s *Searcher) recordFailure(kind string) {
	metrics.ProviderRequestsTotal.WithLabelValues(providerName, "knn", s.index, "error").Inc()
	metrics.ProviderErrorsTotal.WithLabelValues(providerName, "knn", kind).Inc()
}

var errUnauthorized = errors.New("elasticsearch rejected credentials")

func parseError(status int, body io.Reader) error {
	var parsed errorResponse
	raw, _ := io.ReadAll(io.LimitReader(body, 64<<10))
	if json.Unmarshal(raw, &parsed) == nil && parsed.Error.Type != "" {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return fmt.Errorf("%w: %s: %s: %w", errUnauthorized, parsed.Error.Type, parsed.Error.Reason, domain.ErrProvider)
		}
		return fmt.Errorf("elasticsearch error %d: %s: %s: %w", status, parsed.Error.Type, parsed.Error.Reason, domain.ErrProvider)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return fmt.Errorf("%w: status %d: %w", errUnauthorized, status, domain.ErrProvider)
	}
	return fmt.Errorf("elasticsearch error %d: %s: %w", status, string(raw), domain.ErrProvider)
}
