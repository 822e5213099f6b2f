package metrics

import "github.com/prometheus/client_golang/prometheus"

// Provider Prometheus metrics, labelled by provider (openai, elasticsearch) and operation.
var (
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wikiqa",
			Name:      "provider_requests_total",
			Help:      "Total number of external provider requests",
		},
		[]string{"provider", "operation", "model", "status"},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wikiqa",
			Name:      "provider_request_duration_seconds",
			Help:      "External provider request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "operation", "model"},
	)

	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wikiqa",
			Name:      "provider_tokens_total",
			Help:      "Total model tokens consumed",
		},
		[]string{"operation", "model", "type"},
	)

	ProviderErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wikiqa",
			Name:      "provider_errors_total",
			Help:      "Total external provider errors",
		},
		[]string{"provider", "operation", "error_type"},
	)

	BudgetTokensRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "wikiqa",
			Name:      "budget_tokens_remaining",
			Help:      "Remaining token budget",
		},
		[]string{"period"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wikiqa",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

// Pipeline Prometheus metrics.
var (
	AsksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wikiqa",
			Name:      "asks_total",
			Help:      "Questions processed by outcome",
		},
		[]string{"outcome"}, // answered, no_results, invalid, failed
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wikiqa",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	StageFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wikiqa",
			Name:      "stage_failures_total",
			Help:      "Pipeline failures by stage",
		},
		[]string{"stage"},
	)
)

var providerMetricsRegistered bool

// RegisterProviderMetrics registers provider and pipeline metrics. Called once from main and TestMain.
func RegisterProviderMetrics() {
	if providerMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		ProviderRequestsTotal,
		ProviderRequestDuration,
		ProviderTokensTotal,
		ProviderErrorsTotal,
		BudgetTokensRemaining,
		EmbeddingCacheTotal,
		AsksTotal,
		StageDuration,
		StageFailuresTotal,
	)
	providerMetricsRegistered = true
}
