package storage

import (
	"context"
	"sync"
	"time"
)

// memoryStore is a mutex-guarded in-process backend. It keeps the exact
// atomicity contract of the sqlite backend (the mutex spans each check+write)
// and is the store of choice for tests.
type memoryStore struct {
	mu sync.Mutex

	locks     map[string]memLock
	dedup     map[string]time.Time
	schedules map[string]ScheduleState
	quotas    map[string]QuotaState
	jobs      map[string]JobRecord
}

type memLock struct {
	token     string
	expiresAt time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return &memoryStore{
		locks:     map[string]memLock{},
		dedup:     map[string]time.Time{},
		schedules: map[string]ScheduleState{},
		quotas:    map[string]QuotaState{},
		jobs:      map[string]JobRecord{},
	}
}

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) AcquireLock(_ context.Context, key, token string, now time.Time, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.locks[key]; ok && cur.expiresAt.After(now) {
		return false, nil
	}
	s.locks[key] = memLock{token: token, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *memoryStore) ReleaseLock(_ context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.locks[key]; ok && cur.token == token {
		delete(s.locks, key)
	}
	return nil
}

func (s *memoryStore) PutDedup(_ context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dedup[key] = until
	return nil
}

func (s *memoryStore) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	if key == "" {
		return time.Time{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.dedup[key]
	return until, ok, nil
}

func (s *memoryStore) GetSchedule(_ context.Context, channelID string) (ScheduleState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.schedules[channelID]
	return st, ok, nil
}

func (s *memoryStore) PutSchedule(_ context.Context, st ScheduleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[st.ChannelID] = st
	return nil
}

func (s *memoryStore) GetQuota(_ context.Context, provider string) (QuotaState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.quotas[provider]
	return st, ok, nil
}

func (s *memoryStore) PutQuota(_ context.Context, st QuotaState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotas[st.Provider] = st
	return nil
}

func (s *memoryStore) PutJob(_ context.Context, rec JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[rec.JobID] = rec
	return nil
}

func (s *memoryStore) GetJob(_ context.Context, jobID string) (JobRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[jobID]
	return rec, ok, nil
}

func (s *memoryStore) PruneJobs(_ context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.jobs {
		if rec.ExpiresAt.Before(before) {
			delete(s.jobs, id)
		}
	}
	return nil
}
