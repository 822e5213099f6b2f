package domain

import "math"

// Hit is a single document returned by the nearest-neighbor search.
type Hit struct {
	title string
	url   string
	text  string
	score float64
}

// NewHit creates a search hit.
func NewHit(title, url, text string, score float64) Hit {
	return Hit{title: title, url: url, text: text, score: score}
}

// Title returns the article title.
func (h Hit) Title() string { return h.title }

// URL returns the article link.
func (h Hit) URL() string { return h.url }

// Text returns the article text used as grounding context.
func (h Hit) Text() string { return h.text }

// Score returns the raw similarity score.
func (h Hit) Score() float64 { return h.score }

// RoundedScore returns the score rounded to two decimals for display.
func (h Hit) RoundedScore() float64 {
	return math.Round(h.score*100) / 100
}
