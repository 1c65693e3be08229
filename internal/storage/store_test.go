package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "autopost/pkg/logx"
)

func openBackends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "autopost.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func TestLockAcquireContendExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	for name, st := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := st.AcquireLock(ctx, "channel:genre_7", "tok-a", now, time.Minute)
			if err != nil || !ok {
				t.Fatalf("first acquire: ok=%v err=%v", ok, err)
			}
			// A live lock with a different token must contend.
			ok, err = st.AcquireLock(ctx, "channel:genre_7", "tok-b", now.Add(time.Second), time.Minute)
			if err != nil {
				t.Fatalf("second acquire: %v", err)
			}
			if ok {
				t.Fatalf("expected contention while lock is live")
			}
			// After TTL expiry the key is reclaimable.
			ok, err = st.AcquireLock(ctx, "channel:genre_7", "tok-b", now.Add(2*time.Minute), time.Minute)
			if err != nil || !ok {
				t.Fatalf("acquire after expiry: ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestLockReleaseTokenMatch(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	for name, st := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			if ok, err := st.AcquireLock(ctx, "global", "tok-a", now, time.Minute); err != nil || !ok {
				t.Fatalf("acquire: ok=%v err=%v", ok, err)
			}
			// Mismatched token: silent no-op, lock stays held.
			if err := st.ReleaseLock(ctx, "global", "tok-stale"); err != nil {
				t.Fatalf("mismatched release must not error: %v", err)
			}
			if ok, _ := st.AcquireLock(ctx, "global", "tok-b", now, time.Minute); ok {
				t.Fatalf("lock should still be held after mismatched release")
			}
			// Matching token frees it.
			if err := st.ReleaseLock(ctx, "global", "tok-a"); err != nil {
				t.Fatalf("release: %v", err)
			}
			if ok, _ := st.AcquireLock(ctx, "global", "tok-b", now, time.Minute); !ok {
				t.Fatalf("lock should be free after matching release")
			}
		})
	}
}

func TestDedupRoundTrip(t *testing.T) {
	ctx := context.Background()
	until := time.Now().Add(time.Hour).Truncate(time.Millisecond)

	for name, st := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := st.GetDedup(ctx, "video:abc123"); err != nil || ok {
				t.Fatalf("unexpected hit before put: ok=%v err=%v", ok, err)
			}
			if err := st.PutDedup(ctx, "video:abc123", until); err != nil {
				t.Fatalf("put: %v", err)
			}
			got, ok, err := st.GetDedup(ctx, "video:abc123")
			if err != nil || !ok {
				t.Fatalf("get: ok=%v err=%v", ok, err)
			}
			if !got.Equal(until) {
				t.Fatalf("until mismatch: got %v want %v", got, until)
			}
		})
	}
}

func TestScheduleRoundTrip(t *testing.T) {
	ctx := context.Background()
	last := time.Now().Truncate(time.Millisecond)

	for name, st := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := st.GetSchedule(ctx, "genre_1"); err != nil || ok {
				t.Fatalf("unexpected schedule before put: ok=%v err=%v", ok, err)
			}
			// Never-run channel: zero timestamps must survive the round trip.
			if err := st.PutSchedule(ctx, ScheduleState{ChannelID: "genre_1"}); err != nil {
				t.Fatalf("put zero: %v", err)
			}
			got, ok, err := st.GetSchedule(ctx, "genre_1")
			if err != nil || !ok {
				t.Fatalf("get: ok=%v err=%v", ok, err)
			}
			if !got.LastExecutionAt.IsZero() || !got.NextExecutionAt.IsZero() {
				t.Fatalf("expected zero timestamps, got %+v", got)
			}

			want := ScheduleState{ChannelID: "genre_1", LastExecutionAt: last, NextExecutionAt: last.Add(24 * time.Hour)}
			if err := st.PutSchedule(ctx, want); err != nil {
				t.Fatalf("put: %v", err)
			}
			got, _, err = st.GetSchedule(ctx, "genre_1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !got.LastExecutionAt.Equal(want.LastExecutionAt) || !got.NextExecutionAt.Equal(want.NextExecutionAt) {
				t.Fatalf("schedule mismatch: got %+v want %+v", got, want)
			}
		})
	}
}

func TestJobPrune(t *testing.T) {
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	for name, st := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			old := JobRecord{JobID: "job-old", ChannelID: "genre_1", Status: JobDone, CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute)}
			live := JobRecord{JobID: "job-live", ChannelID: "genre_2", Status: JobQueued, CreatedAt: now, ExpiresAt: now.Add(15 * time.Minute)}
			for _, rec := range []JobRecord{old, live} {
				if err := st.PutJob(ctx, rec); err != nil {
					t.Fatalf("put %s: %v", rec.JobID, err)
				}
			}
			if err := st.PruneJobs(ctx, now); err != nil {
				t.Fatalf("prune: %v", err)
			}
			if _, ok, _ := st.GetJob(ctx, "job-old"); ok {
				t.Fatalf("expired job should be pruned")
			}
			got, ok, err := st.GetJob(ctx, "job-live")
			if err != nil || !ok {
				t.Fatalf("live job missing: ok=%v err=%v", ok, err)
			}
			if got.Status != JobQueued || got.ChannelID != "genre_2" {
				t.Fatalf("job mismatch: %+v", got)
			}
		})
	}
}
