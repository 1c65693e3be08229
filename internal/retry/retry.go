// Package retry wraps outbound network calls with bounded exponential retry.
//
// Only transient-class failures (timeouts, connection refused/unreachable,
// DNS errors) are retried. Semantic failures (auth errors, malformed
// responses, explicit quota-exceeded signals) surface on the first attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"syscall"
	"time"

	logx "autopost/pkg/logx"
)

// TransientError reports that every attempt failed with a transient cause.
// It carries the last underlying failure.
type TransientError struct {
	Attempts int
	Last     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure after %d attempts: %v", e.Attempts, e.Last)
}

func (e *TransientError) Unwrap() error { return e.Last }

// Transient marks an error as retryable when the stock classification can't
// see it (e.g. a provider-specific 5xx wrapper).
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientMark{err: err}
}

type transientMark struct{ err error }

func (e transientMark) Error() string { return e.err.Error() }
func (e transientMark) Unwrap() error { return e.err }

// IsTransient classifies err as a retryable network failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var mark transientMark
	if errors.As(err, &mark) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	for _, errno := range []syscall.Errno{
		syscall.ECONNREFUSED,
		syscall.ECONNRESET,
		syscall.EHOSTUNREACH,
		syscall.ENETUNREACH,
		syscall.EPIPE,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

type Options struct {
	MaxAttempts int           // default 3
	BaseDelay   time.Duration // default 2s
	MaxDelay    time.Duration // default 30s
	Jitter      float64       // default 0.2 (20%)
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 2 * time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.Jitter <= 0 {
		o.Jitter = 0.2
	}
	return o
}

type Executor struct {
	opt Options
	log logx.Logger
	rng *rand.Rand

	// sleep is swappable so tests don't wait out real backoff.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewExecutor(opt Options, log logx.Logger) *Executor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Executor{
		opt: opt.withDefaults(),
		log: log,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: func(ctx context.Context, d time.Duration) error {
			tmr := time.NewTimer(d)
			defer tmr.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tmr.C:
				return nil
			}
		},
	}
}

// Do runs fn, retrying transient failures with exponential backoff.
// A non-transient error is returned as-is after the first attempt; exhausting
// all attempts yields a *TransientError wrapping the last failure.
func (e *Executor) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	var last error
	for attempt := 1; attempt <= e.opt.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		last = err
		if attempt == e.opt.MaxAttempts {
			break
		}

		delay := e.backoffDelay(attempt)
		e.log.Debug("retry scheduled",
			logx.String("call", name),
			logx.Int("attempt", attempt+1),
			logx.Duration("delay", delay),
			logx.Err(err),
		)
		if serr := e.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return &TransientError{Attempts: e.opt.MaxAttempts, Last: last}
}

func (e *Executor) backoffDelay(attempt int) time.Duration {
	d := e.opt.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > e.opt.MaxDelay {
			d = e.opt.MaxDelay
			break
		}
	}
	if e.opt.Jitter > 0 && e.rng != nil {
		r := (e.rng.Float64()*2 - 1) * e.opt.Jitter
		d = time.Duration(float64(d) * (1 + r))
		if d < 0 {
			d = 0
		}
	}
	if d > e.opt.MaxDelay {
		d = e.opt.MaxDelay
	}
	return d
}
