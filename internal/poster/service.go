// Package poster is the auto-posting orchestration engine: it composes the
// lock manager, quota limiter, candidate cache, duplicate detector, retry
// executor and frequency scheduler around the external content fetcher and
// publisher to run one cycle for one or all channels.
package poster

import (
	"context"
	"strings"
	"sync"
	"time"

	"autopost/internal/candidate"
	"autopost/internal/dedup"
	"autopost/internal/eventbus"
	"autopost/internal/lock"
	"autopost/internal/quota"
	"autopost/internal/retry"
	"autopost/internal/schedule"
	logx "autopost/pkg/logx"
)

type Options struct {
	GlobalLockTTL  time.Duration // default 300s
	ChannelLockTTL time.Duration // default 120s

	// ChannelPacing is the delay between channels during a sweep, to avoid
	// bursting a provider. Default 15s.
	ChannelPacing time.Duration

	// SweepTimeout is the hard wall-clock ceiling for a whole sweep so the
	// global lock is eventually released even on runaway external calls.
	// Default 10m.
	SweepTimeout time.Duration

	FetchTimeout time.Duration // per outbound call, default 30s
	HistorySize  int           // bounded run history, default 50
}

func (o Options) withDefaults() Options {
	if o.GlobalLockTTL <= 0 {
		o.GlobalLockTTL = 300 * time.Second
	}
	if o.ChannelLockTTL <= 0 {
		o.ChannelLockTTL = 120 * time.Second
	}
	if o.ChannelPacing <= 0 {
		o.ChannelPacing = 15 * time.Second
	}
	if o.SweepTimeout <= 0 {
		o.SweepTimeout = 10 * time.Minute
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 30 * time.Second
	}
	if o.HistorySize <= 0 {
		o.HistorySize = 50
	}
	return o
}

// Deps are the orchestrator's collaborators. Settings, Fetcher and Publisher
// are required; Images may be nil.
type Deps struct {
	Settings  SettingsStore
	Probe     SourceProbe
	Fetcher   Fetcher
	Publisher Publisher
	Images    ImageGenerator

	Locks  *lock.Manager
	Quotas *quota.Limiter
	Cache  *candidate.Cache
	Dedup  *dedup.Detector
	Sched  *schedule.Scheduler
	Retry  *retry.Executor
	Bus    *eventbus.Bus
}

// Service is the single orchestrator instance, constructed once at process
// start and passed by handle to every trigger entry point.
type Service struct {
	opt Options
	log logx.Logger

	settings  SettingsStore
	probe     SourceProbe
	fetcher   Fetcher
	publisher Publisher
	images    ImageGenerator

	locks  *lock.Manager
	quotas *quota.Limiter
	cache  *candidate.Cache
	dedup  *dedup.Detector
	sched  *schedule.Scheduler
	retry  *retry.Executor
	bus    *eventbus.Bus

	hmu     sync.Mutex
	history []ExecutionReport

	// sleep is swappable so tests don't wait out pacing delays.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewService(deps Deps, opt Options, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		opt:       opt.withDefaults(),
		log:       log,
		settings:  deps.Settings,
		probe:     deps.Probe,
		fetcher:   deps.Fetcher,
		publisher: deps.Publisher,
		images:    deps.Images,
		locks:     deps.Locks,
		quotas:    deps.Quotas,
		cache:     deps.Cache,
		dedup:     deps.Dedup,
		sched:     deps.Sched,
		retry:     deps.Retry,
		bus:       deps.Bus,
		sleep: func(ctx context.Context, d time.Duration) error {
			tmr := time.NewTimer(d)
			defer tmr.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tmr.C:
				return nil
			}
		},
		now: time.Now,
	}
}

// CandidateCount is the cached availability signal for display. It probes at
// most a capped subset of the channel's sources, so treat the result as
// 0-vs-at-least-1, not a precise quantity.
func (s *Service) CandidateCount(ctx context.Context, channelID string) (int, error) {
	ch, ok, err := s.settings.Channel(ctx, channelID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrUnknownChannel
	}
	if len(ch.Keywords) == 0 || len(ch.Sources) == 0 {
		return 0, ErrMissingConfig
	}
	return s.cache.GetOrProbe(ctx, ch.ID, ch.Sources, ch.Keywords, s.probe.Probe)
}

func (s *Service) record(rep ExecutionReport) {
	s.hmu.Lock()
	s.history = append(s.history, rep)
	if len(s.history) > s.opt.HistorySize {
		s.history = s.history[len(s.history)-s.opt.HistorySize:]
	}
	s.hmu.Unlock()
}

// History returns a copy of the bounded run history, newest last.
func (s *Service) History() []ExecutionReport {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	out := make([]ExecutionReport, len(s.history))
	copy(out, s.history)
	return out
}

func (ch Channel) maxItems() int {
	if ch.MaxItemsPerRun > 0 {
		return ch.MaxItemsPerRun
	}
	return 10
}

func (ch Channel) maxPosts() int {
	if ch.MaxPostsPerExecution > 0 {
		return ch.MaxPostsPerExecution
	}
	return 1
}

func (ch Channel) provider() string {
	if p := strings.TrimSpace(ch.Provider); p != "" {
		return p
	}
	return string(ch.ContentType)
}

// matches reports whether the item contains any channel keyword
// (case-insensitive substring over title and body).
func (ch Channel) matches(item RawItem) bool {
	haystack := strings.ToLower(item.Title + "\n" + item.Body)
	for _, kw := range ch.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

func (s *Service) publishEvent(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: data})
}
