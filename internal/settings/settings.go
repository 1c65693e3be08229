// Package settings projects the raw configuration file into the domain
// channel model the orchestrator consumes. It subscribes to the config
// manager so file edits take effect without a restart.
package settings

import (
	"context"
	"sync"

	"autopost/internal/config"
	"autopost/internal/poster"
	"autopost/internal/schedule"
	logx "autopost/pkg/logx"
)

// Store serves the current channel set. Reads are lock-cheap; the snapshot
// swaps wholesale on reload.
type Store struct {
	log logx.Logger

	mu       sync.RWMutex
	channels []poster.Channel
	byID     map[string]poster.Channel
}

func NewStore(cfg *config.Config, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{log: log}
	s.Apply(cfg)
	return s
}

// Apply replaces the channel snapshot from a (validated) config.
func (s *Store) Apply(cfg *config.Config) {
	channels := make([]poster.Channel, 0, len(cfg.Channels))
	byID := make(map[string]poster.Channel, len(cfg.Channels))
	for _, cc := range cfg.Channels {
		ch := fromConfig(cc)
		channels = append(channels, ch)
		byID[ch.ID] = ch
	}

	s.mu.Lock()
	s.channels = channels
	s.byID = byID
	s.mu.Unlock()
	s.log.Debug("channel settings applied", logx.Int("channels", len(channels)))
}

// Follow applies every config published on ch until ctx is done. Run as a
// goroutine next to the config manager's Watch.
func (s *Store) Follow(ctx context.Context, ch <-chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			s.Apply(cfg)
		}
	}
}

func (s *Store) Channel(_ context.Context, id string) (poster.Channel, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.byID[id]
	return ch, ok, nil
}

func (s *Store) Channels(context.Context) ([]poster.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]poster.Channel, len(s.channels))
	copy(out, s.channels)
	return out, nil
}

func fromConfig(cc config.ChannelConfig) poster.Channel {
	provider := cc.Provider
	if provider == "" {
		provider = cc.ContentType
	}
	status := cc.PostStatus
	if status == "" {
		status = "draft"
	}
	return poster.Channel{
		ID:                   cc.ID,
		Name:                 cc.Name,
		ContentType:          poster.ContentType(cc.ContentType),
		Keywords:             cc.Keywords,
		Sources:              cc.Sources,
		Provider:             provider,
		MaxItemsPerRun:       cc.MaxItemsPerRun,
		PostStatus:           status,
		ImageMethod:          cc.ImageMethod,
		AutoPostingEnabled:   cc.AutoPosting.Enabled,
		Frequency:            schedule.ParseFrequency(cc.AutoPosting.Frequency),
		CustomDays:           cc.AutoPosting.CustomDays,
		MaxPostsPerExecution: cc.AutoPosting.MaxPostsPerExecution,
	}
}
