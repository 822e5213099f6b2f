package wikiqa

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/wikiqa/internal/domain"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrEmptyQuestion       = domain.ErrEmptyQuestion
	ErrQuestionTooLong     = domain.ErrQuestionTooLong
	ErrNoRelevantDocument  = domain.ErrNoRelevantDocument
	ErrTokenBudgetExceeded = domain.ErrTokenBudgetExceeded
	ErrProvider            = domain.ErrProvider
	ErrUnauthorized        = errors.New("unauthorized")
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wikiqa: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap maps the response code to a sentinel error.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "empty_question":
		return ErrEmptyQuestion
	case "question_too_long":
		return ErrQuestionTooLong
	case "no_results":
		return ErrNoRelevantDocument
	case "token_budget_exceeded":
		return ErrTokenBudgetExceeded
	case "provider_error":
		return ErrProvider
	case "unauthorized":
		return ErrUnauthorized
	default:
		return nil
	}
}
