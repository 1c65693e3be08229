package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"autopost/internal/storage"
	logx "autopost/pkg/logx"
)

func newTestLimiter(t *testing.T) (*Limiter, *time.Time) {
	t.Helper()
	l := NewLimiter(storage.NewMemory(), logx.Nop())
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.Local)
	clock := &now
	l.now = func() time.Time { return *clock }
	return l, clock
}

func TestDailyLimitDenies(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t)
	l.Configure("video", Config{DailyLimit: 3})

	for i := 0; i < 3; i++ {
		if err := l.CheckAndReserve(ctx, "video"); err != nil {
			t.Fatalf("reserve %d: %v", i+1, err)
		}
	}
	if err := l.CheckAndReserve(ctx, "video"); !errors.Is(err, ErrExceeded) {
		t.Fatalf("expected ErrExceeded after limit, got %v", err)
	}
}

func TestWindowRolloverResetsCounter(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter(t)
	l.Configure("rss", Config{DailyLimit: 1})

	if err := l.CheckAndReserve(ctx, "rss"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := l.CheckAndReserve(ctx, "rss"); !errors.Is(err, ErrExceeded) {
		t.Fatalf("expected deny, got %v", err)
	}

	// Next local day: fresh window, fresh counter.
	*clock = clock.Add(24 * time.Hour)
	if err := l.CheckAndReserve(ctx, "rss"); err != nil {
		t.Fatalf("reserve after rollover: %v", err)
	}
}

func TestMarkExceededOverridesCounter(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter(t)
	l.Configure("video", Config{DailyLimit: 100})

	if err := l.MarkExceeded(ctx, "video"); err != nil {
		t.Fatalf("mark exceeded: %v", err)
	}
	// Local counter is nowhere near the limit, but the provider said no.
	if err := l.CheckAndReserve(ctx, "video"); !errors.Is(err, ErrExceeded) {
		t.Fatalf("expected deny during cool-down, got %v", err)
	}
	if ok, _ := l.Available(ctx, "video"); ok {
		t.Fatalf("Available must be false during cool-down")
	}

	// 23h later: still cooling down.
	*clock = clock.Add(23 * time.Hour)
	if err := l.CheckAndReserve(ctx, "video"); !errors.Is(err, ErrExceeded) {
		t.Fatalf("expected deny at 23h, got %v", err)
	}

	// Past 24h: flag cleared, counter reset.
	*clock = clock.Add(2 * time.Hour)
	if ok, err := l.Available(ctx, "video"); err != nil || !ok {
		t.Fatalf("Available after cool-down: ok=%v err=%v", ok, err)
	}
	if err := l.CheckAndReserve(ctx, "video"); err != nil {
		t.Fatalf("reserve after cool-down: %v", err)
	}
}

func TestAvailableDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t)
	l.Configure("rss", Config{DailyLimit: 1})

	for i := 0; i < 5; i++ {
		if ok, err := l.Available(ctx, "rss"); err != nil || !ok {
			t.Fatalf("Available read %d: ok=%v err=%v", i, ok, err)
		}
	}
	if err := l.CheckAndReserve(ctx, "rss"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
}
