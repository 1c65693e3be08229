// Package quota tracks external-provider call budgets and cool-downs.
//
// Two independent rules gate each provider:
//
//   - a daily request counter (window boundary at local midnight), and
//   - a provider-declared exhaustion flag set via MarkExceeded, which is
//     authoritative over the local counter for 24 hours (a provider can
//     reject sooner than the locally estimated limit).
//
// A secondary pacing rule (rate.Limiter) enforces a minimum inter-call delay
// regardless of the daily counter, to avoid bursts.
package quota

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"autopost/internal/storage"
	logx "autopost/pkg/logx"
)

// ErrExceeded is returned when the provider's budget is spent or its
// cool-down is active.
var ErrExceeded = errors.New("provider quota exceeded")

const coolDown = 24 * time.Hour

// Config is one provider's budget.
type Config struct {
	// DailyLimit is the locally estimated request budget per window.
	// 0 means no local limit (MarkExceeded still applies).
	DailyLimit int

	// MinInterval is the minimum delay between calls. Default 1s.
	MinInterval time.Duration
}

type Limiter struct {
	store storage.Store
	log   logx.Logger

	mu     sync.Mutex
	cfgs   map[string]Config
	pacers map[string]*rate.Limiter

	now func() time.Time
}

func NewLimiter(store storage.Store, log logx.Logger) *Limiter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Limiter{
		store:  store,
		log:    log,
		cfgs:   map[string]Config{},
		pacers: map[string]*rate.Limiter{},
		now:    time.Now,
	}
}

// Configure sets (or replaces) a provider's budget. Safe to call on reload.
func (l *Limiter) Configure(provider string, cfg Config) {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = time.Second
	}
	l.mu.Lock()
	l.cfgs[provider] = cfg
	// Replace the pacer only when the interval changed, so an in-flight
	// reservation keeps its spacing.
	if p, ok := l.pacers[provider]; !ok || p.Limit() != rate.Every(cfg.MinInterval) {
		l.pacers[provider] = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	l.mu.Unlock()
}

// CheckAndReserve consumes one unit of the provider's daily budget.
// It returns ErrExceeded when the cool-down is active or the counter is spent.
//
// The limiter's mutex spans the read-modify-write so concurrent triggers in
// this process cannot double-spend; cross-process coordination is out of
// scope (single logical scheduling authority).
func (l *Limiter) CheckAndReserve(ctx context.Context, provider string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st, err := l.loadLocked(ctx, provider, now)
	if err != nil {
		return err
	}
	if !st.QuotaExceededAt.IsZero() {
		return ErrExceeded
	}
	if limit := l.cfgs[provider].DailyLimit; limit > 0 && st.RequestCount >= limit {
		return ErrExceeded
	}
	st.RequestCount++
	return l.store.PutQuota(ctx, st)
}

// MarkExceeded records that the provider itself rejected us for quota.
// This is authoritative: all checks fail until 24h elapse.
func (l *Limiter) MarkExceeded(ctx context.Context, provider string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st, err := l.loadLocked(ctx, provider, now)
	if err != nil {
		return err
	}
	st.QuotaExceededAt = now
	l.log.Warn("provider quota exhausted", logx.String("provider", provider), logx.Time("until", now.Add(coolDown)))
	return l.store.PutQuota(ctx, st)
}

// Available reports whether a call would currently be allowed, without
// consuming budget.
func (l *Limiter) Available(ctx context.Context, provider string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st, err := l.loadLocked(ctx, provider, now)
	if err != nil {
		return false, err
	}
	if !st.QuotaExceededAt.IsZero() {
		return false, nil
	}
	if limit := l.cfgs[provider].DailyLimit; limit > 0 && st.RequestCount >= limit {
		return false, nil
	}
	return true, nil
}

// Pace blocks until the provider's minimum inter-call delay has elapsed,
// or ctx is done.
func (l *Limiter) Pace(ctx context.Context, provider string) error {
	l.mu.Lock()
	p := l.pacers[provider]
	if p == nil {
		p = rate.NewLimiter(rate.Every(time.Second), 1)
		l.pacers[provider] = p
	}
	l.mu.Unlock()
	return p.Wait(ctx)
}

// loadLocked fetches the provider state, rolling the window and clearing an
// elapsed cool-down. Callers hold l.mu.
func (l *Limiter) loadLocked(ctx context.Context, provider string, now time.Time) (storage.QuotaState, error) {
	st, ok, err := l.store.GetQuota(ctx, provider)
	if err != nil {
		return storage.QuotaState{}, err
	}
	window := dayStart(now)
	if !ok {
		return storage.QuotaState{Provider: provider, WindowStart: window}, nil
	}

	dirty := false
	if !st.QuotaExceededAt.IsZero() && !now.Before(st.QuotaExceededAt.Add(coolDown)) {
		// Cool-down elapsed: clear the flag and start a fresh counter.
		st.QuotaExceededAt = time.Time{}
		st.RequestCount = 0
		st.WindowStart = window
		dirty = true
	}
	if !st.WindowStart.Equal(window) {
		st.WindowStart = window
		st.RequestCount = 0
		dirty = true
	}
	if dirty {
		if err := l.store.PutQuota(ctx, st); err != nil {
			return storage.QuotaState{}, err
		}
	}
	return st, nil
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
