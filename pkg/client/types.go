package wikiqa

import "time"

// Source is one article used to answer the question, in engine order.
type Source struct {
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Score float64 `json:"score"`
}

// Usage counts the tokens one question consumed.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Answer is the server's reply to one question.
type Answer struct {
	ID          string   `json:"id"`
	Question    string   `json:"question"`
	Translation string   `json:"translation"`
	Answer      string   `json:"answer"`
	Choices     []string `json:"choices,omitempty"`
	Sources     []Source `json:"sources"`
	Usage       Usage    `json:"usage"`
}

// UsagePeriod is the aggregation window for usage reports.
type UsagePeriod string

// UsagePeriod constants.
const (
	PeriodDay   UsagePeriod = "day"
	PeriodMonth UsagePeriod = "month"
)

// BudgetStatus reports the token limit state. Limit and Remaining are -1 when unlimited.
type BudgetStatus struct {
	Limit     int64 `json:"tokens_limit"`
	Remaining int64 `json:"tokens_remaining"`
	Exhausted bool  `json:"is_exhausted"`
}

// UsageReport contains token usage for a period.
type UsageReport struct {
	Period      UsagePeriod  `json:"period"`
	PeriodStart time.Time    `json:"period_start_at"`
	PeriodEnd   time.Time    `json:"period_end_at"`
	TokensUsed  int64        `json:"tokens_used"`
	Budget      BudgetStatus `json:"budget"`
}

// HealthStatus represents the aggregated server health.
type HealthStatus struct {
	Status string            `json:"status"` // "ok", "degraded", "error"
	Checks map[string]string `json:"checks"` // component -> "ok"/"error"
}
