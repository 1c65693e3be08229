package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"autopost/internal/lock"
	"autopost/internal/poster"
	"autopost/internal/storage"
	logx "autopost/pkg/logx"
)

// gateRunner blocks the first call until released; every overlapping call
// fails with lock contention, like the real per-channel lock would.
type gateRunner struct {
	mu      sync.Mutex
	busy    bool
	once    sync.Once
	started chan struct{} // closed once the first call is inside
	release chan struct{}
}

func newGateRunner() *gateRunner {
	return &gateRunner{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateRunner) Execute(ctx context.Context, channelID string) (poster.ExecutionReport, error) {
	g.mu.Lock()
	if g.busy {
		g.mu.Unlock()
		return poster.ExecutionReport{ChannelID: channelID, SkippedReason: poster.SkipLockHeld}, lock.ErrContended
	}
	g.busy = true
	g.once.Do(func() { close(g.started) })
	g.mu.Unlock()

	select {
	case <-g.release:
	case <-ctx.Done():
		return poster.ExecutionReport{}, ctx.Err()
	}
	g.mu.Lock()
	g.busy = false
	g.mu.Unlock()
	return poster.ExecutionReport{ChannelID: channelID, PostsCreated: 2}, nil
}

func waitStatus(t *testing.T, tr *Tracker, jobID string, want storage.JobStatus) storage.JobRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, ok, err := tr.Get(context.Background(), jobID)
		if err != nil {
			t.Fatalf("Get(%s): %v", jobID, err)
		}
		if ok && rec.Status == want {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %q", jobID, want)
	return storage.JobRecord{}
}

func TestOverlappingTriggersSecondReportsContention(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := newGateRunner()
	tr := NewTracker(storage.NewMemory(), runner, Options{Workers: 2}, logx.Nop())
	tr.Start(ctx)

	first, err := tr.Enqueue(ctx, "genre_7")
	if err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("first job never started")
	}

	second, err := tr.Enqueue(ctx, "genre_7")
	if err != nil {
		t.Fatalf("second Enqueue: %v", err)
	}
	rec := waitStatus(t, tr, second, storage.JobError)
	if rec.Message != string(poster.SkipLockHeld) {
		t.Fatalf("second job message = %q, want %q", rec.Message, poster.SkipLockHeld)
	}

	close(runner.release)
	rec = waitStatus(t, tr, first, storage.JobDone)
	if rec.PostsCreated != 2 {
		t.Fatalf("first job PostsCreated = %d, want 2", rec.PostsCreated)
	}

	cancel()
	tr.Wait()
}

type staticRunner struct {
	rep poster.ExecutionReport
	err error
}

func (s staticRunner) Execute(context.Context, string) (poster.ExecutionReport, error) {
	return s.rep, s.err
}

func TestSkipReasonBecomesDoneMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := NewTracker(storage.NewMemory(),
		staticRunner{rep: poster.ExecutionReport{SkippedReason: poster.SkipNoCandidates}},
		Options{}, logx.Nop())
	tr.Start(ctx)

	id, err := tr.Enqueue(ctx, "genre_7")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	rec := waitStatus(t, tr, id, storage.JobDone)
	if rec.Message != string(poster.SkipNoCandidates) {
		t.Fatalf("message = %q, want %q", rec.Message, poster.SkipNoCandidates)
	}
}

func TestQueueFull(t *testing.T) {
	// Never started: nothing drains the queue.
	tr := NewTracker(storage.NewMemory(), staticRunner{}, Options{QueueSize: 1}, logx.Nop())

	if _, err := tr.Enqueue(context.Background(), "a"); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	id, err := tr.Enqueue(context.Background(), "b")
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if id != "" {
		t.Fatalf("got job ID %q for rejected trigger", id)
	}
}
