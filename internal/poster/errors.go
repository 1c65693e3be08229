package poster

import (
	"errors"
	"fmt"
)

// Expected conditions are modeled as values returned up the call chain so the
// skip-vs-retry-vs-abort policy stays testable; panics are reserved for
// programmer errors.
var (
	// ErrMissingConfig: channel has no keywords or no sources.
	ErrMissingConfig = errors.New("channel configuration incomplete")

	// ErrNoCandidates: the candidate cache reports zero postable items.
	ErrNoCandidates = errors.New("no candidates available")

	// ErrAuth: non-retryable credential failure from a provider.
	ErrAuth = errors.New("provider authentication failed")

	// ErrUnknownChannel: the settings store has no such channel.
	ErrUnknownChannel = errors.New("unknown channel")
)

// PublishError is a downstream write failure for one item.
type PublishError struct {
	ChannelID string
	Title     string
	Cause     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish failed for %q on channel %s: %v", e.Title, e.ChannelID, e.Cause)
}

func (e *PublishError) Unwrap() error { return e.Cause }

// SkipReason labels why a channel was skipped without an attempted crawl.
type SkipReason string

const (
	SkipNone          SkipReason = ""
	SkipDisabled      SkipReason = "Disabled"
	SkipConfiguration SkipReason = "ConfigurationError"
	SkipLockHeld      SkipReason = "LockContention"
	SkipQuota         SkipReason = "QuotaExceeded"
	SkipNoCandidates  SkipReason = "NoCandidates"
	SkipNotDue        SkipReason = "NotDue"
)
