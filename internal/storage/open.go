package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "autopost/pkg/logx"
)

// Store is the persistence API used by the orchestration core.
//
// All operations are safe for concurrent use. Time arguments are passed in
// explicitly where expiry matters so callers (and tests) control the clock.
type Store interface {
	// AcquireLock atomically creates the lock if no live lock exists for key.
	// An expired lock counts as absent. Returns false when a live lock with a
	// different token holds the key.
	AcquireLock(ctx context.Context, key, token string, now time.Time, ttl time.Duration) (bool, error)

	// ReleaseLock deletes the lock only if the stored token matches.
	// A mismatched or missing token is a silent no-op, never an error.
	ReleaseLock(ctx context.Context, key, token string) error

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)

	GetSchedule(ctx context.Context, channelID string) (ScheduleState, bool, error)
	PutSchedule(ctx context.Context, st ScheduleState) error

	GetQuota(ctx context.Context, provider string) (QuotaState, bool, error)
	PutQuota(ctx context.Context, st QuotaState) error

	PutJob(ctx context.Context, rec JobRecord) error
	GetJob(ctx context.Context, jobID string) (JobRecord, bool, error)
	PruneJobs(ctx context.Context, before time.Time) error

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
