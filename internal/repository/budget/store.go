// Package budget persists token budget counters in a key-value store.
package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/wikiqa/internal/db"
)

// Period selects the counter lifetime.
type Period string

// Budget periods.
const (
	Daily   Period = "daily"
	Monthly Period = "monthly"
)

// store is the consumer interface for budget operations (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store keeps counters via INCRBY + EXPIRE NX.
type Store struct {
	store    store
	dailyTTL time.Duration
	monthTTL time.Duration
}

// New creates a budget store.
// dailyTTL should outlive one day (48h), monthTTL one month (62 days).
func New(s store, dailyTTL, monthTTL time.Duration) *Store {
	return &Store{store: s, dailyTTL: dailyTTL, monthTTL: monthTTL}
}

// IncrBy adds val to the period counter and returns the new total.
// The TTL is set once, on the first write of the period.
func (s *Store) IncrBy(ctx context.Context, period Period, key string, val int64) (int64, error) {
	total, err := s.store.IncrBy(ctx, key, val)
	if err != nil {
		return 0, fmt.Errorf("budget INCRBY %s: %w", key, err)
	}

	if err := s.store.Expire(ctx, key, s.ttl(period), true); err != nil {
		return total, fmt.Errorf("budget EXPIRE %s: %w", key, err)
	}
	return total, nil
}

// Get returns the counter value, 0 when the key does not exist.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("budget GET %s: %w", key, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("budget GET %s parse: %w", key, err)
	}
	return val, nil
}

func (s *Store) ttl(p Period) time.Duration {
	if p == Daily {
		return s.dailyTTL
	}
	return s.monthTTL
}
