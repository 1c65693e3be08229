// Package rss fetches candidate items from RSS and Atom feeds. Article and
// video channels both consume feeds here (video channels point at a feed of
// the provider's channel uploads), so one client serves both content types.
package rss

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"autopost/internal/poster"
	"autopost/internal/retry"
	logx "autopost/pkg/logx"
)

type Options struct {
	Timeout   time.Duration // per request, default 30s
	UserAgent string        // default "autopost/1.0"
}

// Client implements poster.SourceProbe and poster.Fetcher over feed URLs.
type Client struct {
	parser *gofeed.Parser
	http   *http.Client
	agent  string
	log    logx.Logger
}

func NewClient(opt Options, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 30 * time.Second
	}
	if opt.UserAgent == "" {
		opt.UserAgent = "autopost/1.0"
	}
	return &Client{
		parser: gofeed.NewParser(),
		http:   &http.Client{Timeout: opt.Timeout},
		agent:  opt.UserAgent,
		log:    log,
	}
}

func (c *Client) fetchFeed(ctx context.Context, source string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("building feed request: %w", err)
	}
	req.Header.Set("User-Agent", c.agent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", source, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("fetching %s: %s: %w", source, resp.Status, poster.ErrAuth)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		// Server-side trouble is worth another attempt.
		return nil, retry.Transient(fmt.Errorf("fetching %s: %s", source, resp.Status))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetching %s: %s", source, resp.Status)
	}

	feed, err := c.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", source, err)
	}
	return feed, nil
}

// Probe counts items in one feed matching one keyword. Used by the candidate
// cache, which early-exits on the first hit, so the count need not be exact.
func (c *Client) Probe(ctx context.Context, source, keyword string) (int, error) {
	feed, err := c.fetchFeed(ctx, source)
	if err != nil {
		return 0, err
	}
	kw := strings.ToLower(keyword)
	n := 0
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		if strings.Contains(strings.ToLower(item.Title+"\n"+itemBody(item)), kw) {
			n++
		}
	}
	return n, nil
}

// Fetch retrieves up to maxItems raw items from one feed, newest first as
// the feed presents them.
func (c *Client) Fetch(ctx context.Context, source string, maxItems int) ([]poster.RawItem, error) {
	feed, err := c.fetchFeed(ctx, source)
	if err != nil {
		return nil, err
	}
	if maxItems <= 0 {
		maxItems = 10
	}

	items := make([]poster.RawItem, 0, maxItems)
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		if len(items) >= maxItems {
			break
		}
		raw := poster.RawItem{
			ExternalID: externalID(item),
			Title:      item.Title,
			Body:       itemBody(item),
			Link:       item.Link,
		}
		if item.PublishedParsed != nil {
			raw.PublishedAt = *item.PublishedParsed
		}
		items = append(items, raw)
	}
	c.log.Debug("feed fetched", logx.String("source", source), logx.Int("items", len(items)))
	return items, nil
}

func itemBody(item *gofeed.Item) string {
	if item.Content != "" {
		return item.Content
	}
	return item.Description
}

// externalID prefers the feed's GUID and falls back to the link, which is
// stable enough for dedup across runs.
func externalID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	return item.Link
}
