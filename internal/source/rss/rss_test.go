package rss

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"autopost/internal/poster"
	"autopost/internal/retry"
	logx "autopost/pkg/logx"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Music News</title>
    <item>
      <title>New indie release roundup</title>
      <link>https://example.com/a1</link>
      <guid>tag:example.com,2026:a1</guid>
      <description>This week in indie rock.</description>
    </item>
    <item>
      <title>Jazz quartet tours</title>
      <link>https://example.com/a2</link>
      <description>Nothing matching here.</description>
    </item>
  </channel>
</rss>`

func feedServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchMapsFeedItems(t *testing.T) {
	srv := feedServer(t, http.StatusOK, sampleFeed)
	c := NewClient(Options{}, logx.Nop())

	items, err := c.Fetch(context.Background(), srv.URL, 10)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].ExternalID != "tag:example.com,2026:a1" {
		t.Fatalf("GUID not used as external ID: %q", items[0].ExternalID)
	}
	if items[1].ExternalID != "https://example.com/a2" {
		t.Fatalf("link fallback not used: %q", items[1].ExternalID)
	}
}

func TestFetchHonorsMaxItems(t *testing.T) {
	srv := feedServer(t, http.StatusOK, sampleFeed)
	c := NewClient(Options{}, logx.Nop())

	items, err := c.Fetch(context.Background(), srv.URL, 1)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
}

func TestProbeCountsKeywordMatches(t *testing.T) {
	srv := feedServer(t, http.StatusOK, sampleFeed)
	c := NewClient(Options{}, logx.Nop())

	n, err := c.Probe(context.Background(), srv.URL, "Indie")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if n != 1 {
		t.Fatalf("probe count = %d, want 1 (case-insensitive)", n)
	}
}

func TestStatusMapping(t *testing.T) {
	c := NewClient(Options{}, logx.Nop())
	ctx := context.Background()

	srv := feedServer(t, http.StatusForbidden, "")
	if _, err := c.Fetch(ctx, srv.URL, 5); !errors.Is(err, poster.ErrAuth) {
		t.Fatalf("403 err = %v, want ErrAuth", err)
	}

	srv = feedServer(t, http.StatusServiceUnavailable, "")
	if _, err := c.Fetch(ctx, srv.URL, 5); !retry.IsTransient(err) {
		t.Fatalf("503 err = %v, want transient", err)
	}

	srv = feedServer(t, http.StatusNotFound, "")
	_, err := c.Fetch(ctx, srv.URL, 5)
	if err == nil || retry.IsTransient(err) {
		t.Fatalf("404 err = %v, want permanent failure", err)
	}
}
