// Package job tracks asynchronous execution triggers. Callers get a job ID
// back immediately and poll for the terminal status; the work itself runs on
// a small worker pool so overlapping triggers for the same channel hit the
// per-channel lock instead of queueing invisibly.
package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"autopost/internal/lock"
	"autopost/internal/poster"
	"autopost/internal/quota"
	"autopost/internal/storage"
	logx "autopost/pkg/logx"
)

// ErrQueueFull is returned when the bounded job queue cannot take another
// trigger. Callers should retry later or use a synchronous run.
var ErrQueueFull = errors.New("job queue full")

// Runner executes one channel; satisfied by *poster.Service.
type Runner interface {
	Execute(ctx context.Context, channelID string) (poster.ExecutionReport, error)
}

type Options struct {
	Workers   int           // default 2
	QueueSize int           // default 16
	TTL       time.Duration // terminal-record retention, default 1h

	// PruneEvery bounds how often expired records are swept. Default 10m.
	PruneEvery time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 16
	}
	if o.TTL <= 0 {
		o.TTL = time.Hour
	}
	if o.PruneEvery <= 0 {
		o.PruneEvery = 10 * time.Minute
	}
	return o
}

type Tracker struct {
	opt    Options
	store  storage.Store
	runner Runner
	log    logx.Logger

	queue chan storage.JobRecord
	wg    sync.WaitGroup
	now   func() time.Time
}

func NewTracker(store storage.Store, runner Runner, opt Options, log logx.Logger) *Tracker {
	if log.IsZero() {
		log = logx.Nop()
	}
	opt = opt.withDefaults()
	return &Tracker{
		opt:    opt,
		store:  store,
		runner: runner,
		log:    log,
		queue:  make(chan storage.JobRecord, opt.QueueSize),
		now:    time.Now,
	}
}

// Start launches the worker pool and the prune loop. Workers drain until ctx
// is cancelled; Wait blocks until they exit.
func (t *Tracker) Start(ctx context.Context) {
	for i := 0; i < t.opt.Workers; i++ {
		t.wg.Add(1)
		go t.worker(ctx)
	}
	t.wg.Add(1)
	go t.pruneLoop(ctx)
}

func (t *Tracker) Wait() { t.wg.Wait() }

// Enqueue registers a trigger for channelID and returns its job ID without
// waiting for execution.
func (t *Tracker) Enqueue(ctx context.Context, channelID string) (string, error) {
	now := t.now()
	rec := storage.JobRecord{
		JobID:     uuid.NewString(),
		ChannelID: channelID,
		Status:    storage.JobQueued,
		CreatedAt: now,
		ExpiresAt: now.Add(t.opt.TTL),
	}
	if err := t.store.PutJob(ctx, rec); err != nil {
		return "", err
	}
	select {
	case t.queue <- rec:
		return rec.JobID, nil
	default:
		rec.Status = storage.JobError
		rec.Message = ErrQueueFull.Error()
		if err := t.store.PutJob(ctx, rec); err != nil {
			t.log.Error("job record update failed", logx.String("job", rec.JobID), logx.Err(err))
		}
		return "", ErrQueueFull
	}
}

// Get returns the current record for a job ID.
func (t *Tracker) Get(ctx context.Context, jobID string) (storage.JobRecord, bool, error) {
	return t.store.GetJob(ctx, jobID)
}

func (t *Tracker) worker(ctx context.Context) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-t.queue:
			t.run(ctx, rec)
		}
	}
}

func (t *Tracker) run(ctx context.Context, rec storage.JobRecord) {
	rec.Status = storage.JobRunning
	if err := t.store.PutJob(ctx, rec); err != nil {
		t.log.Error("job record update failed", logx.String("job", rec.JobID), logx.Err(err))
	}

	rep, err := t.runner.Execute(ctx, rec.ChannelID)
	rec.PostsCreated = rep.PostsCreated
	rec.ExpiresAt = t.now().Add(t.opt.TTL)

	switch {
	case err == nil && rep.SkippedReason != poster.SkipNone:
		rec.Status = storage.JobDone
		rec.Message = string(rep.SkippedReason)
	case err == nil:
		rec.Status = storage.JobDone
		rec.Message = fmt.Sprintf("created %d posts", rep.PostsCreated)
	default:
		rec.Status = storage.JobError
		rec.Message = failureMessage(rep, err)
	}

	if err := t.store.PutJob(ctx, rec); err != nil {
		t.log.Error("job record update failed", logx.String("job", rec.JobID), logx.Err(err))
	}
	t.log.Info("job finished",
		logx.String("job", rec.JobID),
		logx.String("channel", rec.ChannelID),
		logx.String("status", string(rec.Status)),
		logx.String("message", rec.Message))
}

// failureMessage keeps the polled message aligned with the skip taxonomy so
// clients can match on stable strings.
func failureMessage(rep poster.ExecutionReport, err error) string {
	if rep.SkippedReason != poster.SkipNone {
		return string(rep.SkippedReason)
	}
	switch {
	case errors.Is(err, lock.ErrContended):
		return string(poster.SkipLockHeld)
	case errors.Is(err, quota.ErrExceeded):
		return string(poster.SkipQuota)
	case errors.Is(err, poster.ErrMissingConfig):
		return string(poster.SkipConfiguration)
	case errors.Is(err, poster.ErrUnknownChannel):
		return "UnknownChannel"
	default:
		return err.Error()
	}
}

func (t *Tracker) pruneLoop(ctx context.Context) {
	defer t.wg.Done()
	tick := time.NewTicker(t.opt.PruneEvery)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if err := t.store.PruneJobs(ctx, t.now()); err != nil {
				t.log.Warn("job prune failed", logx.Err(err))
			}
		}
	}
}
