// Package candidate answers "does channel X currently have at least one
// postable item" from a short-lived cache, probing sources only when the
// cached answer is stale.
//
// The probe is a cheap existence check, not a census: it walks a small capped
// subset of sources crossed with a capped subset of keywords and stops at the
// first match. Callers must treat the count as a 0-vs-at-least-1 signal.
package candidate

import (
	"context"
	"sync"
	"time"

	logx "autopost/pkg/logx"
)

// ProbeFunc performs one cheap source×keyword match count.
type ProbeFunc func(ctx context.Context, source, keyword string) (int, error)

type entry struct {
	count      int
	computedAt time.Time
}

type Cache struct {
	log logx.Logger

	mu      sync.Mutex
	entries map[string]entry

	ttl        time.Duration
	sourceCap  int
	keywordCap int

	now func() time.Time
}

type Options struct {
	TTL        time.Duration // default 5m
	SourceCap  int           // default 3
	KeywordCap int           // default 5
}

func NewCache(opt Options, log logx.Logger) *Cache {
	if opt.TTL <= 0 {
		opt.TTL = 5 * time.Minute
	}
	if opt.SourceCap <= 0 {
		opt.SourceCap = 3
	}
	if opt.KeywordCap <= 0 {
		opt.KeywordCap = 5
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Cache{
		log:        log,
		entries:    map[string]entry{},
		ttl:        opt.TTL,
		sourceCap:  opt.SourceCap,
		keywordCap: opt.KeywordCap,
		now:        time.Now,
	}
}

// Get returns the cached count without probing. ok is false when there is no
// fresh entry; stale entries are not returned.
func (c *Cache) Get(channelID string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[channelID]
	if !ok || c.now().Sub(e.computedAt) > c.ttl {
		return 0, false
	}
	return e.count, true
}

// GetOrProbe returns a fresh cached count, probing when the entry is missing
// or stale. The probe early-exits at the first matching source/keyword pair.
func (c *Cache) GetOrProbe(ctx context.Context, channelID string, sources, keywords []string, probe ProbeFunc) (int, error) {
	if n, ok := c.Get(channelID); ok {
		return n, nil
	}

	count, err := c.runProbe(ctx, channelID, sources, keywords, probe)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.entries[channelID] = entry{count: count, computedAt: c.now()}
	c.mu.Unlock()
	return count, nil
}

// Invalidate drops the entry so the very next read recomputes regardless of
// TTL. Called after a real execution: the posted candidate was consumed and
// the cached count would otherwise overstate availability.
func (c *Cache) Invalidate(channelID string) {
	c.mu.Lock()
	delete(c.entries, channelID)
	c.mu.Unlock()
}

func (c *Cache) runProbe(ctx context.Context, channelID string, sources, keywords []string, probe ProbeFunc) (int, error) {
	if len(sources) > c.sourceCap {
		sources = sources[:c.sourceCap]
	}
	if len(keywords) > c.keywordCap {
		keywords = keywords[:c.keywordCap]
	}

	var lastErr error
	probed, failed := 0, 0
	for _, src := range sources {
		for _, kw := range keywords {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			probed++
			n, err := probe(ctx, src, kw)
			if err != nil {
				// Cheap heuristic: a failing source shouldn't hide a match
				// elsewhere, so keep going.
				failed++
				lastErr = err
				c.log.Debug("candidate probe failed", logx.String("channel", channelID), logx.String("source", src), logx.Err(err))
				continue
			}
			if n > 0 {
				// Existence confirmed; remaining pairs are never queried.
				return 1, nil
			}
		}
	}
	if probed > 0 && failed == probed {
		return 0, lastErr
	}
	return 0, nil
}
