package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "memory": in-process maps (tests, throwaway deployments)
//
// If Driver is empty, sqlite is used.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ScheduleState is one channel's scheduling clock.
//
// Invariant: NextExecutionAt >= LastExecutionAt whenever both are set.
// Mutated only by the scheduler after an execution attempt completes.
type ScheduleState struct {
	ChannelID       string
	LastExecutionAt time.Time // zero = never run
	NextExecutionAt time.Time // zero = not yet derived
}

// QuotaState is one provider's request budget for the current window.
//
// If QuotaExceededAt is set it is authoritative over RequestCount: all
// checks fail until 24h have elapsed, regardless of the local counter.
type QuotaState struct {
	Provider        string
	WindowStart     time.Time // local-midnight day boundary
	RequestCount    int
	QuotaExceededAt time.Time // zero = not exceeded
}

type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobError   JobStatus = "error"
)

// JobRecord tracks one async execution trigger through to a terminal status.
// Created by enqueue, mutated exactly once to a terminal state by the worker,
// read-only afterward until expiry.
type JobRecord struct {
	JobID        string
	ChannelID    string
	Status       JobStatus
	Message      string
	PostsCreated int
	CreatedAt    time.Time
	ExpiresAt    time.Time
}
