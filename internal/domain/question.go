package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultMaxQuestionRunes bounds the question length accepted from users.
const DefaultMaxQuestionRunes = 1000

// Question is a validated user question.
type Question struct {
	text string
}

// NewQuestion trims and validates raw user input.
// maxRunes <= 0 falls back to DefaultMaxQuestionRunes.
func NewQuestion(raw string, maxRunes int) (Question, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Question{}, ErrEmptyQuestion
	}
	if maxRunes <= 0 {
		maxRunes = DefaultMaxQuestionRunes
	}
	if n := utf8.RuneCountInString(text); n > maxRunes {
		return Question{}, fmt.Errorf("%w: %d runes (max %d)", ErrQuestionTooLong, n, maxRunes)
	}
	return Question{text: text}, nil
}

// Text returns the trimmed question.
func (q Question) Text() string { return q.text }
