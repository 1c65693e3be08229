package poster

import (
	"context"
	"time"
)

// ChannelStatus is one channel's row in the status snapshot.
type ChannelStatus struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	ContentType ContentType `json:"content_type"`
	Enabled     bool        `json:"enabled"`

	LastExecutionAt time.Time `json:"last_execution_at,omitzero"`
	NextExecutionAt time.Time `json:"next_execution_at,omitzero"`
	Eligible        bool      `json:"eligible"`

	// CandidateCount is present only when the cache holds a fresh entry;
	// a snapshot never triggers a probe.
	CandidateCount *int `json:"candidate_count,omitempty"`
}

// Snapshot is the point-in-time operational view served to the admin API.
type Snapshot struct {
	Time     time.Time         `json:"time"`
	Channels []ChannelStatus   `json:"channels"`
	History  []ExecutionReport `json:"history,omitempty"`
}

// Status assembles the snapshot from settings, persisted schedules and the
// candidate cache. Read-only: no locks taken, no quota consumed.
func (s *Service) Status(ctx context.Context) (Snapshot, error) {
	channels, err := s.settings.Channels(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Time: s.now(), History: s.History()}
	for _, ch := range channels {
		st := ChannelStatus{
			ID:          ch.ID,
			Name:        ch.Name,
			ContentType: ch.ContentType,
			Enabled:     ch.AutoPostingEnabled,
		}
		if rec, ok, err := s.sched.State(ctx, ch.ID); err == nil && ok {
			st.LastExecutionAt = rec.LastExecutionAt
			st.NextExecutionAt = rec.NextExecutionAt
		}
		if due, _, err := s.sched.Eligible(ctx, ch.ID, ch.Frequency, ch.CustomDays); err == nil {
			st.Eligible = due
		}
		if n, ok := s.cache.Get(ch.ID); ok {
			st.CandidateCount = &n
		}
		snap.Channels = append(snap.Channels, st)
	}
	return snap, nil
}
