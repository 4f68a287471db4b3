package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shepherdwind/bean-talk/internal/service"
)

var (
	// ErrRateLimit marks a throttled call. The next attempt waits the full MaxDelay.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrMaxRetries is returned once every attempt has failed.
	ErrMaxRetries = errors.New("max retries exceeded")
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// WithRetry calls operation until it succeeds, fails permanently or runs out
// of attempts. name labels the log lines, e.g. "send chat message".
func WithRetry(ctx context.Context, name string, opts service.RetryOptions, operation func(attempt int) error) error {
	opts = retryDefaults(opts)

	for attempt := 1; ; attempt++ {
		err := operation(attempt)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if attempt >= opts.MaxAttempts {
			return fmt.Errorf("%s: %w after %d attempts: %w", name, ErrMaxRetries, attempt, err)
		}

		delay := backoff(opts, attempt, err)
		slog.Warn("Retry scheduled",
			"operation", name,
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func retryDefaults(opts service.RetryOptions) service.RetryOptions {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay < opts.InitialDelay {
		opts.MaxDelay = max(opts.InitialDelay, 30*time.Second)
	}
	if opts.Multiplier < 1 {
		opts.Multiplier = 2
	}
	return opts
}

// backoff is the wait after the given failed attempt: InitialDelay grown by
// Multiplier per attempt, capped at MaxDelay.
func backoff(opts service.RetryOptions, attempt int, err error) time.Duration {
	if errors.Is(err, ErrRateLimit) {
		return opts.MaxDelay
	}
	d := float64(opts.InitialDelay) * math.Pow(opts.Multiplier, float64(attempt-1))
	if d >= float64(opts.MaxDelay) {
		return opts.MaxDelay
	}
	return time.Duration(d)
}
