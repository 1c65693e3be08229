// Package lock provides token-based mutual exclusion on top of storage.Store.
//
// Locks are leases: expiry is computed from acquiredAt+ttl and never actively
// swept, so a crashed holder's lock simply becomes reclaimable. Release only
// succeeds for the token that acquired the lock; a stale holder releasing a
// reclaimed lock is a silent no-op.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"autopost/internal/storage"
	logx "autopost/pkg/logx"
)

// ErrContended is returned when a live lock with a different token holds the key.
var ErrContended = errors.New("lock contended")

// GlobalKey serializes an entire sweep across all channels.
const GlobalKey = "global"

// ChannelKey serializes work on a single channel.
func ChannelKey(channelID string) string { return "channel:" + channelID }

type Manager struct {
	store storage.Store
	log   logx.Logger

	// now is swappable for tests.
	now func() time.Time
}

func NewManager(store storage.Store, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{store: store, log: log, now: time.Now}
}

// Lease proves ownership of an acquired lock.
type Lease struct {
	Key   string
	Token string

	m *Manager
}

// Acquire attempts to take the lock without blocking.
// It fails immediately with ErrContended when someone else holds the key.
func (m *Manager) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	token := uuid.NewString()
	ok, err := m.store.AcquireLock(ctx, key, token, m.now(), ttl)
	if err != nil {
		return Lease{}, err
	}
	if !ok {
		return Lease{}, ErrContended
	}
	m.log.Debug("lock acquired", logx.String("key", key), logx.Duration("ttl", ttl))
	return Lease{Key: key, Token: token, m: m}, nil
}

// Release frees the lock if this lease still owns it. Losing the race to a
// reclaimer (our TTL elapsed and someone re-acquired) is not an error.
func (l Lease) Release(ctx context.Context) {
	if l.m == nil {
		return
	}
	if err := l.m.store.ReleaseLock(ctx, l.Key, l.Token); err != nil {
		l.m.log.Warn("lock release failed", logx.String("key", l.Key), logx.Err(err))
		return
	}
	l.m.log.Debug("lock released", logx.String("key", l.Key))
}
