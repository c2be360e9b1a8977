// Package ratelimit implements a per-user token bucket.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lorekeeper/internal/apperr"
)

// Config describes a bucket: Capacity tokens, refilled by RefillAmount every
// Interval.
type Config struct {
	Capacity     int           `yaml:"capacity"`
	RefillAmount int           `yaml:"refill_amount"`
	Interval     time.Duration `yaml:"interval"`
}

// Validate checks the bucket parameters.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.RefillAmount, validation.Required, validation.Min(1)),
		validation.Field(&c.Interval, validation.Required, validation.Min(time.Millisecond)),
	)
}

// State is the persisted bucket of one key.
type State struct {
	Tokens     int
	LastRefill time.Time
}

func (s State) equal(o State) bool {
	return s.Tokens == o.Tokens && s.LastRefill.Equal(o.LastRefill)
}

// Refill credits the whole intervals elapsed since s.LastRefill. LastRefill
// moves by exactly those intervals, never to now, and Tokens is clamped to
// the capacity.
func Refill(s State, cfg Config, now time.Time) State {
	if s.Tokens > cfg.Capacity {
		s.Tokens = cfg.Capacity
	}
	if cfg.Interval <= 0 || cfg.RefillAmount <= 0 || !now.After(s.LastRefill) {
		return s
	}
	n := int64(now.Sub(s.LastRefill) / cfg.Interval)
	if n == 0 {
		return s
	}
	tokens := int64(s.Tokens) + n*int64(cfg.RefillAmount)
	if tokens > int64(cfg.Capacity) {
		tokens = int64(cfg.Capacity)
	}
	s.Tokens = int(tokens)
	s.LastRefill = s.LastRefill.Add(time.Duration(n) * cfg.Interval)
	return s
}

// retryAfter is the wait until state holds cost tokens.
func retryAfter(s State, cfg Config, cost int, now time.Time) time.Duration {
	need := cost - s.Tokens
	if need <= 0 || cfg.RefillAmount <= 0 {
		return 0
	}
	intervals := (need + cfg.RefillAmount - 1) / cfg.RefillAmount
	wait := s.LastRefill.Add(time.Duration(intervals) * cfg.Interval).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Mutator computes the next state of a bucket. exists is false for a key
// seen for the first time. save reports whether next must be persisted.
type Mutator func(cur State, exists bool) (next State, save bool)

// Store runs a Mutator atomically per key. It may call fn more than once
// when a transaction is retried.
type Store interface {
	Update(ctx context.Context, key string, fn Mutator) error
}

// Result is a successful consumption.
type Result struct {
	Remaining int
	Capacity  int
}

// Limiter charges requests against per-key buckets.
type Limiter struct {
	cfg   Config
	store Store
	now   func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter.
func New(cfg Config, store Store, opts ...Option) *Limiter {
	l := &Limiter{cfg: cfg, store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Capacity returns the configured bucket size.
func (l *Limiter) Capacity() int { return l.cfg.Capacity }

// Consume takes cost tokens from key's bucket. When the bucket holds fewer
// it returns a *apperr.RateLimitError and charges nothing; any refill is
// still persisted.
func (l *Limiter) Consume(ctx context.Context, key string, cost int) (Result, error) {
	var res Result
	var limited *apperr.RateLimitError
	err := l.store.Update(ctx, key, func(cur State, exists bool) (State, bool) {
		limited = nil
		now := l.now()
		if !exists {
			cur = State{Tokens: l.cfg.Capacity, LastRefill: now}
		}
		next := Refill(cur, l.cfg, now)
		if next.Tokens < cost {
			limited = &apperr.RateLimitError{
				Remaining:  next.Tokens,
				Capacity:   l.cfg.Capacity,
				RetryAfter: retryAfter(next, l.cfg, cost, now),
			}
			return next, !exists || !next.equal(cur)
		}
		next.Tokens -= cost
		res = Result{Remaining: next.Tokens, Capacity: l.cfg.Capacity}
		return next, true
	})
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: consume: %w", err)
	}
	if limited != nil {
		return Result{}, limited
	}
	return res, nil
}

// MemoryStore keeps buckets in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]State
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]State)}
}

// Update implements Store under a single mutex.
func (m *MemoryStore) Update(_ context.Context, key string, fn Mutator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, exists := m.buckets[key]
	next, save := fn(cur, exists)
	if save {
		m.buckets[key] = next
	}
	return nil
}

// Get returns the stored state of key.
func (m *MemoryStore) Get(key string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.buckets[key]
	return s, ok
}
