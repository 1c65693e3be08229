package config

// Config is the root of the autopost configuration file (YAML or JSON).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Unknown fields are rejected so typos fail loudly at startup.
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	Server  *ServerConfig `json:"server,omitempty"`

	// Engine controls the orchestration core: sweep tick, locks, caches,
	// retries and the async job tracker.
	Engine EngineConfig `json:"engine"`

	// Providers declares external content providers and their budgets,
	// keyed by provider name (e.g. "rss", "video").
	Providers map[string]ProviderConfig `json:"providers,omitempty"`

	// Channels lists the content-acquisition targets. Edited out-of-band
	// and hot-reloaded; the engine treats them as read-only.
	Channels []ChannelConfig `json:"channels"`
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"`
	Console *bool             `json:"console,omitempty"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Driver values:
//   - "sqlite": SQLite database file (durable, default)
//   - "memory": process-local only (state resets on restart)
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// ServerConfig controls the admin HTTP API.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8686").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type ServerConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:8686"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// EngineConfig controls the orchestration core.
//
// Defaults (when fields are omitted/zero):
//   - sweep_timeout: "10m"
//   - global_lock_ttl: "300s", channel_lock_ttl: "120s"
//   - channel_pacing: "15s"
//   - candidate_ttl: "5m", probe_source_cap: 3, probe_keyword_cap: 5
//   - article_dedup_window: "168h", video_dedup_window: "1h"
//   - fetch_timeout: "30s", retry_max: 3, retry_base: "2s"
//   - job_ttl: "15m", job_queue_size: 32
type EngineConfig struct {
	// Tick is a cron spec or "@every <duration>" driving the periodic sweep.
	// Empty disables the timer trigger (manual/API triggers still work).
	Tick string `json:"tick,omitempty"`

	SweepTimeout  string `json:"sweep_timeout,omitempty"`
	GlobalLockTTL string `json:"global_lock_ttl,omitempty"`
	SpotLockTTL   string `json:"channel_lock_ttl,omitempty"`
	ChannelPacing string `json:"channel_pacing,omitempty"`

	CandidateTTL    string `json:"candidate_ttl,omitempty"`
	ProbeSourceCap  int    `json:"probe_source_cap,omitempty"`
	ProbeKeywordCap int    `json:"probe_keyword_cap,omitempty"`

	ArticleDedupWindow string `json:"article_dedup_window,omitempty"`
	VideoDedupWindow   string `json:"video_dedup_window,omitempty"`

	FetchTimeout string `json:"fetch_timeout,omitempty"`
	RetryMax     int    `json:"retry_max,omitempty"`
	RetryBase    string `json:"retry_base,omitempty"`

	JobTTL       string `json:"job_ttl,omitempty"`
	JobQueueSize int    `json:"job_queue_size,omitempty"`
}

// ProviderConfig declares a provider's request budget.
type ProviderConfig struct {
	// DailyLimit is the locally estimated request budget per quota window.
	// 0 means unlimited (the provider may still reject sooner).
	DailyLimit int `json:"daily_limit,omitempty"`

	// MinInterval enforces a minimum delay between calls to this provider,
	// independent of the daily counter. Default "1s".
	MinInterval string `json:"min_interval,omitempty"`
}

// ChannelConfig is one content-acquisition target.
type ChannelConfig struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	ContentType string   `json:"content_type"` // "article" or "video"
	Keywords    []string `json:"keywords"`
	Sources     []string `json:"sources"`

	// Provider names the quota bucket for this channel's outbound calls.
	// Defaults to the content type.
	Provider string `json:"provider,omitempty"`

	MaxItemsPerRun int    `json:"max_items_per_run,omitempty"`
	PostStatus     string `json:"post_status,omitempty"` // "draft" (default) or "publish"
	ImageMethod    string `json:"image_method,omitempty"`

	AutoPosting AutoPostingConfig `json:"auto_posting"`
}

type AutoPostingConfig struct {
	Enabled bool `json:"enabled"`

	// Frequency is one of "daily", "weekly", "monthly", "custom".
	Frequency string `json:"frequency,omitempty"`

	// CustomDays is the interval in days when Frequency is "custom".
	CustomDays int `json:"custom_days,omitempty"`

	MaxPostsPerExecution int `json:"max_posts_per_execution,omitempty"`
}
