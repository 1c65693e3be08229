package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
logging:
  level: debug
storage:
  driver: memory
engine:
  tick: "@every 5m"
  channel_pacing: 10s
providers:
  newsapi:
    daily_limit: 100
    min_interval: 2s
channels:
  - id: genre_7
    name: Indie Rock
    content_type: article
    keywords: [indie]
    sources: [https://feeds.example.com/music]
    provider: newsapi
    auto_posting:
      enabled: true
      frequency: weekly
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Channels) != 1 || cfg.Channels[0].ID != "genre_7" {
		t.Fatalf("channels = %+v", cfg.Channels)
	}
	if cfg.Providers["newsapi"].DailyLimit != 100 {
		t.Fatalf("provider budget not decoded: %+v", cfg.Providers)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get returned a different config")
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	bad := strings.Replace(validYAML, "channel_pacing", "chanel_pacing", 1)
	m := NewManager(writeConfig(t, "config.yaml", bad))
	if _, err := m.Load(); err == nil {
		t.Fatalf("typo field accepted")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"duplicate id", func(c *Config) {
			c.Channels = append(c.Channels, c.Channels[0])
		}, "duplicate channel id"},
		{"bad content type", func(c *Config) {
			c.Channels[0].ContentType = "podcast"
		}, "content_type"},
		{"custom without days", func(c *Config) {
			c.Channels[0].AutoPosting.Frequency = "custom"
			c.Channels[0].AutoPosting.CustomDays = 0
		}, "custom_days"},
		{"undeclared provider", func(c *Config) {
			c.Channels[0].Provider = "ghost"
		}, "not declared"},
		{"bad duration", func(c *Config) {
			c.Engine.SweepTimeout = "ten minutes"
		}, "invalid duration"},
		{"bad post status", func(c *Config) {
			c.Channels[0].PostStatus = "pending"
		}, "post_status"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManager(writeConfig(t, "config.yaml", validYAML))
			cfg, err := m.Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tc.mutate(cfg)
			err = cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("Validate err = %v, want containing %q", err, tc.wantSub)
			}
		})
	}
}

func TestHalfConfiguredChannelLoads(t *testing.T) {
	body := strings.Replace(validYAML, "keywords: [indie]", "keywords: []", 1)
	m := NewManager(writeConfig(t, "config.yaml", body))
	if _, err := m.Load(); err != nil {
		t.Fatalf("half-configured channel should load (runtime skip): %v", err)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", 5*time.Second)
	if err != nil || d != 5*time.Second {
		t.Fatalf("empty = (%v, %v), want default", d, err)
	}
	d, err = ParseDurationOrDefault("x", "250ms", 5*time.Second)
	if err != nil || d != 250*time.Millisecond {
		t.Fatalf("250ms = (%v, %v)", d, err)
	}
	if _, err = ParseDurationOrDefault("x", "nope", 5*time.Second); err == nil {
		t.Fatalf("invalid duration accepted")
	}
}

func TestWatchPublishesOnChange(t *testing.T) {
	path := writeConfig(t, "config.yaml", validYAML)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher a beat to register before rewriting.
	time.Sleep(100 * time.Millisecond)
	updated := strings.Replace(validYAML, "enabled: true", "enabled: false", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-sub:
		if cfg.Channels[0].AutoPosting.Enabled {
			t.Fatalf("published config does not reflect the edit")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no config published after file change")
	}
}
