package search

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"strings"
	"syscall"
	"time"
)

// RetryConfig controls the exponential backoff used around engine calls.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig allows two attempts 250ms apart.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  2,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// backoff returns the jittered wait before retry number attempt (1-based),
// growing by Multiplier from InitialDelay and capped at MaxDelay.
func (c RetryConfig) backoff(attempt int) time.Duration {
	delay := float64(c.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= c.Multiplier
		if c.MaxDelay > 0 && delay >= float64(c.MaxDelay) {
			break
		}
	}
	// ±25% jitter.
	wait := time.Duration(delay * (0.75 + rand.Float64()*0.5))
	if c.MaxDelay > 0 && wait > c.MaxDelay {
		wait = c.MaxDelay
	}
	return wait
}

// RetryWithBackoff calls fn until it succeeds, fails permanently or runs out
// of attempts. It never sleeps past the context deadline: when the next wait
// would overrun it, the last error is returned as is.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	attempts := max(cfg.MaxAttempts, 1)

	err := fn()
	for attempt := 1; attempt < attempts && err != nil; attempt++ {
		if ctx.Err() != nil || !isTransientError(err) {
			return err
		}
		wait := cfg.backoff(attempt)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= wait {
			return err
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		err = fn()
	}
	return err
}

// isTransientError reports connection-level failures worth a second try.
// Deadline errors are excluded: the per-engine budget is already spent.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return !netErr.Timeout()
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "unexpected eof")
}
