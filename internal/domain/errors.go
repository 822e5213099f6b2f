package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration signals a missing or invalid setting. Fatal at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrConnectivity signals that an external service is unreachable at startup.
	ErrConnectivity = errors.New("connectivity error")
	// ErrProvider signals a failure returned by the model provider or the search engine.
	ErrProvider = errors.New("provider error")
	// ErrNoRelevantDocument signals that the search returned zero hits.
	ErrNoRelevantDocument = errors.New("no relevant document found")
	// ErrEmptyQuestion signals a blank question. No external call is made.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrQuestionTooLong signals a question above the configured length.
	ErrQuestionTooLong = errors.New("question too long")
	// ErrTokenBudgetExceeded signals an exhausted token budget in reject mode.
	ErrTokenBudgetExceeded = errors.New("token budget exceeded")
)

// StageError records which pipeline stage failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Err.Error())
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err with the failing stage.
func NewStageError(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the stage recorded in err, or StageNone.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StageNone
}
