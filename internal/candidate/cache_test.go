package candidate

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "autopost/pkg/logx"
)

func TestProbeEarlyExit(t *testing.T) {
	ctx := context.Background()
	c := NewCache(Options{}, logx.Nop())

	queried := []string{}
	probe := func(_ context.Context, source, _ string) (int, error) {
		queried = append(queried, source)
		if source == "https://b.example/feed" {
			return 1, nil
		}
		return 0, nil
	}

	sources := []string{"https://a.example/feed", "https://b.example/feed", "https://c.example/feed"}
	n, err := c.GetOrProbe(ctx, "genre_1", sources, []string{"golang"}, probe)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected availableCount=1, got %d", n)
	}
	for _, src := range queried {
		if src == "https://c.example/feed" {
			t.Fatalf("source 3 must never be queried after a match")
		}
	}
	if queried[len(queried)-1] != "https://b.example/feed" {
		t.Fatalf("probe should stop at the matching source, got %v", queried)
	}
}

func TestTTLBoundaries(t *testing.T) {
	ctx := context.Background()
	c := NewCache(Options{TTL: 5 * time.Minute}, logx.Nop())

	t0 := time.Now()
	clock := t0
	c.now = func() time.Time { return clock }

	probes := 0
	probe := func(context.Context, string, string) (int, error) {
		probes++
		return 1, nil
	}
	sources := []string{"https://a.example/feed"}
	keywords := []string{"news"}

	if _, err := c.GetOrProbe(ctx, "genre_1", sources, keywords, probe); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if probes != 1 {
		t.Fatalf("expected 1 probe, got %d", probes)
	}

	// Just inside the TTL: cached entry reused.
	clock = t0.Add(4*time.Minute + 59*time.Second)
	if _, err := c.GetOrProbe(ctx, "genre_1", sources, keywords, probe); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if probes != 1 {
		t.Fatalf("entry should be reused at t0+4m59s, probes=%d", probes)
	}

	// Just past the TTL: recomputed.
	clock = t0.Add(5*time.Minute + time.Second)
	if _, err := c.GetOrProbe(ctx, "genre_1", sources, keywords, probe); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if probes != 2 {
		t.Fatalf("entry should be recomputed at t0+5m1s, probes=%d", probes)
	}
}

func TestInvalidateForcesRecompute(t *testing.T) {
	ctx := context.Background()
	c := NewCache(Options{TTL: time.Hour}, logx.Nop())

	probes := 0
	probe := func(context.Context, string, string) (int, error) {
		probes++
		return 1, nil
	}
	src := []string{"https://a.example/feed"}
	kw := []string{"news"}

	if _, err := c.GetOrProbe(ctx, "genre_1", src, kw, probe); err != nil {
		t.Fatalf("probe: %v", err)
	}
	c.Invalidate("genre_1")
	if _, ok := c.Get("genre_1"); ok {
		t.Fatalf("Get must miss after Invalidate")
	}
	if _, err := c.GetOrProbe(ctx, "genre_1", src, kw, probe); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if probes != 2 {
		t.Fatalf("Invalidate must force recompute, probes=%d", probes)
	}
}

func TestAllProbesFailingSurfacesError(t *testing.T) {
	ctx := context.Background()
	c := NewCache(Options{}, logx.Nop())

	boom := errors.New("connection refused")
	probe := func(context.Context, string, string) (int, error) { return 0, boom }

	_, err := c.GetOrProbe(ctx, "genre_1", []string{"https://a.example/feed"}, []string{"news"}, probe)
	if !errors.Is(err, boom) {
		t.Fatalf("expected probe error when every source fails, got %v", err)
	}
	// Failures are not cached.
	if _, ok := c.Get("genre_1"); ok {
		t.Fatalf("failed probe must not populate the cache")
	}
}

func TestCapsLimitProbeFanout(t *testing.T) {
	ctx := context.Background()
	c := NewCache(Options{SourceCap: 2, KeywordCap: 2}, logx.Nop())

	probes := 0
	probe := func(context.Context, string, string) (int, error) {
		probes++
		return 0, nil
	}
	sources := []string{"s1", "s2", "s3", "s4"}
	keywords := []string{"k1", "k2", "k3"}
	if _, err := c.GetOrProbe(ctx, "genre_1", sources, keywords, probe); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if probes != 4 {
		t.Fatalf("expected capped 2x2=4 probes, got %d", probes)
	}
}
