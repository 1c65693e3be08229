package config

import (
	"fmt"
	"strings"
)

// Validate checks structural invariants of the config.
//
// Per-channel prerequisites (keywords/sources present) are deliberately NOT
// enforced here: a half-configured channel must load fine and be skipped at
// run time, not block the whole file from committing.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "sqlite", "sqlite3", "memory":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}

	seen := make(map[string]struct{}, len(c.Channels))
	for i, ch := range c.Channels {
		where := fmt.Sprintf("channels[%d]", i)
		id := strings.TrimSpace(ch.ID)
		if id == "" {
			return fmt.Errorf("%s: id is required", where)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%s: duplicate channel id %q", where, id)
		}
		seen[id] = struct{}{}

		switch strings.ToLower(strings.TrimSpace(ch.ContentType)) {
		case "article", "video":
		default:
			return fmt.Errorf("%s: content_type must be \"article\" or \"video\", got %q", where, ch.ContentType)
		}

		switch strings.ToLower(strings.TrimSpace(ch.AutoPosting.Frequency)) {
		case "", "daily", "weekly", "monthly":
		case "custom":
			if ch.AutoPosting.CustomDays <= 0 {
				return fmt.Errorf("%s: custom frequency requires custom_days > 0", where)
			}
		default:
			return fmt.Errorf("%s: unknown frequency %q", where, ch.AutoPosting.Frequency)
		}

		switch strings.ToLower(strings.TrimSpace(ch.PostStatus)) {
		case "", "draft", "publish":
		default:
			return fmt.Errorf("%s: post_status must be \"draft\" or \"publish\", got %q", where, ch.PostStatus)
		}

		if p := strings.TrimSpace(ch.Provider); p != "" && c.Providers != nil {
			if _, ok := c.Providers[p]; !ok {
				return fmt.Errorf("%s: provider %q is not declared under providers", where, p)
			}
		}
	}

	for name, p := range c.Providers {
		if p.DailyLimit < 0 {
			return fmt.Errorf("providers.%s: daily_limit must be >= 0", name)
		}
		if _, err := ParseDurationField("providers."+name+".min_interval", p.MinInterval); err != nil {
			return err
		}
	}

	// Parse all duration fields once so bad values fail at load, not mid-sweep.
	durs := []struct{ path, raw string }{
		{"engine.sweep_timeout", c.Engine.SweepTimeout},
		{"engine.global_lock_ttl", c.Engine.GlobalLockTTL},
		{"engine.channel_lock_ttl", c.Engine.SpotLockTTL},
		{"engine.channel_pacing", c.Engine.ChannelPacing},
		{"engine.candidate_ttl", c.Engine.CandidateTTL},
		{"engine.article_dedup_window", c.Engine.ArticleDedupWindow},
		{"engine.video_dedup_window", c.Engine.VideoDedupWindow},
		{"engine.fetch_timeout", c.Engine.FetchTimeout},
		{"engine.retry_base", c.Engine.RetryBase},
		{"engine.job_ttl", c.Engine.JobTTL},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
	}
	for _, d := range durs {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}

	return nil
}
