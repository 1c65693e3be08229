// Package dedup prevents re-posting the same external item within a bounded
// look-back window.
//
// The window is per content type: short for frequently-republished video
// listings, longer for articles. Outside the window the same external id is
// treated as fresh again; a provider may legitimately resurface old content,
// and the system intentionally does not dedup forever.
package dedup

import (
	"context"
	"strings"
	"time"

	"autopost/internal/storage"
	logx "autopost/pkg/logx"
)

// Windows holds the per-content-type look-back windows.
type Windows struct {
	Article time.Duration // default 7d
	Video   time.Duration // default 1h
}

func (w Windows) withDefaults() Windows {
	if w.Article <= 0 {
		w.Article = 7 * 24 * time.Hour
	}
	if w.Video <= 0 {
		w.Video = time.Hour
	}
	return w
}

// For returns the window for a content type.
func (w Windows) For(contentType string) time.Duration {
	if strings.EqualFold(strings.TrimSpace(contentType), "video") {
		return w.Video
	}
	return w.Article
}

type Detector struct {
	store   storage.Store
	windows Windows
	log     logx.Logger

	now func() time.Time
}

func NewDetector(store storage.Store, windows Windows, log logx.Logger) *Detector {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Detector{store: store, windows: windows.withDefaults(), log: log, now: time.Now}
}

// IsDuplicate reports whether externalID was remembered within the content
// type's look-back window.
func (d *Detector) IsDuplicate(ctx context.Context, contentType, externalID string) (bool, error) {
	if strings.TrimSpace(externalID) == "" {
		return false, nil
	}
	until, ok, err := d.store.GetDedup(ctx, dedupKey(contentType, externalID))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return d.now().Before(until), nil
}

// Remember records externalID so re-seeing it within the window flags a
// duplicate. Called after a successful publish.
func (d *Detector) Remember(ctx context.Context, contentType, externalID string) error {
	if strings.TrimSpace(externalID) == "" {
		return nil
	}
	until := d.now().Add(d.windows.For(contentType))
	return d.store.PutDedup(ctx, dedupKey(contentType, externalID), until)
}

func dedupKey(contentType, externalID string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" {
		ct = "article"
	}
	return ct + ":" + externalID
}
