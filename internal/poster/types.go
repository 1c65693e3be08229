package poster

import (
	"context"
	"time"

	"autopost/internal/schedule"
)

// ContentType distinguishes the two acquisition flavors.
type ContentType string

const (
	ContentArticle ContentType = "article"
	ContentVideo   ContentType = "video"
)

// Channel is one independently configured content-acquisition target.
// Owned by the settings store; read-only to the orchestration core.
type Channel struct {
	ID          string
	Name        string
	ContentType ContentType
	Keywords    []string
	Sources     []string

	// Provider names the quota bucket for this channel's outbound calls.
	Provider string

	MaxItemsPerRun int    // fetch size per source, default 10
	PostStatus     string // "draft" or "publish"
	ImageMethod    string // featured-image strategy passed to the generator

	AutoPostingEnabled   bool
	Frequency            schedule.Frequency
	CustomDays           int
	MaxPostsPerExecution int // default 1
}

// RawItem is one externally available item prior to dedup/publish.
type RawItem struct {
	ExternalID  string
	Title       string
	Body        string
	Link        string
	PublishedAt time.Time
}

// SettingsStore supplies channel configuration. External collaborator.
type SettingsStore interface {
	Channel(ctx context.Context, id string) (Channel, bool, error)
	Channels(ctx context.Context) ([]Channel, error)
}

// SourceProbe performs the cheap match-count used by the candidate cache.
type SourceProbe interface {
	Probe(ctx context.Context, source, keyword string) (int, error)
}

// Fetcher retrieves raw items from one source.
type Fetcher interface {
	Fetch(ctx context.Context, source string, maxItems int) ([]RawItem, error)
}

// Publisher turns a matched item into a content item downstream.
type Publisher interface {
	Create(ctx context.Context, item RawItem, ch Channel) (postID string, err error)
}

// ImageGenerator renders a featured image for a created post. The method
// names the rendering strategy (channel-configured, generator-defined).
// Fire-and-forget: failure is non-fatal to publishing.
type ImageGenerator interface {
	Generate(ctx context.Context, postID, title string, keywords []string, method string) (attachmentID string, err error)
}
