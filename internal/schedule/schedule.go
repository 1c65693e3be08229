// Package schedule computes and advances each channel's next eligible run
// time from its frequency policy.
//
// Per channel the state machine is {never-run, eligible, waiting}:
//
//   - never-run (no lastExecutionAt) is always eligible immediately
//   - an execution attempt moves the channel to waiting with
//     nextExecutionAt = now + interval
//   - waiting becomes eligible exactly when now >= nextExecutionAt
//
// The distinction that must be preserved: pre-condition failures (missing
// keywords/sources, quota unavailable, zero candidates) do NOT advance the
// clock; only an attempted crawl does, whether it posts or fails mid-fetch.
// Advancing on a fetch failure avoids a tight retry loop; not advancing on a
// pre-condition skip avoids silently losing the slot to misconfiguration.
package schedule

import (
	"context"
	"strings"
	"time"

	"autopost/internal/storage"
	logx "autopost/pkg/logx"
)

// Frequency is a channel's run cadence.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Custom  Frequency = "custom"
)

// ParseFrequency normalizes a config string; unknown/empty falls back to daily.
func ParseFrequency(s string) Frequency {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "weekly":
		return Weekly
	case "monthly":
		return Monthly
	case "custom":
		return Custom
	default:
		return Daily
	}
}

// Interval maps a frequency policy to its run interval.
func Interval(freq Frequency, customDays int) time.Duration {
	switch freq {
	case Weekly:
		return 7 * 24 * time.Hour
	case Monthly:
		return 30 * 24 * time.Hour
	case Custom:
		if customDays <= 0 {
			customDays = 1
		}
		return time.Duration(customDays) * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

type Scheduler struct {
	store storage.Store
	log   logx.Logger

	now func() time.Time
}

func NewScheduler(store storage.Store, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{store: store, log: log, now: time.Now}
}

// Eligible reports whether the channel may run now, and when it next becomes
// eligible (zero when it is eligible immediately).
func (s *Scheduler) Eligible(ctx context.Context, channelID string, freq Frequency, customDays int) (bool, time.Time, error) {
	st, found, err := s.store.GetSchedule(ctx, channelID)
	if err != nil {
		return false, time.Time{}, err
	}
	now := s.now()

	// Never run: eligible immediately.
	if !found || st.LastExecutionAt.IsZero() {
		return true, time.Time{}, nil
	}

	interval := Interval(freq, customDays)

	// Clock-skew correction: a lastExecutionAt in the future (drift or bad
	// data) would leave the channel stuck waiting forever.
	if st.LastExecutionAt.After(now) {
		st.LastExecutionAt = now.Add(-interval)
		st.NextExecutionAt = time.Time{}
		if err := s.store.PutSchedule(ctx, st); err != nil {
			return false, time.Time{}, err
		}
		s.log.Warn("future lastExecutionAt corrected", logx.String("channel", channelID), logx.Time("corrected_to", st.LastExecutionAt))
	}

	// A persisted next time is authoritative; otherwise derive it.
	next := st.NextExecutionAt
	if next.IsZero() {
		next = st.LastExecutionAt.Add(interval)
	}

	if now.Before(next) {
		return false, next, nil
	}
	return true, time.Time{}, nil
}

// Advance records an attempted crawl: lastExecutionAt = now and
// nextExecutionAt = now + interval. Call it on success and on mid-fetch
// failure, never on a pre-condition skip.
func (s *Scheduler) Advance(ctx context.Context, channelID string, freq Frequency, customDays int) error {
	now := s.now()
	st := storage.ScheduleState{
		ChannelID:       channelID,
		LastExecutionAt: now,
		NextExecutionAt: now.Add(Interval(freq, customDays)),
	}
	if err := s.store.PutSchedule(ctx, st); err != nil {
		return err
	}
	s.log.Debug("schedule advanced", logx.String("channel", channelID), logx.Time("next", st.NextExecutionAt))
	return nil
}

// State returns the raw persisted schedule for display.
func (s *Scheduler) State(ctx context.Context, channelID string) (storage.ScheduleState, bool, error) {
	return s.store.GetSchedule(ctx, channelID)
}
