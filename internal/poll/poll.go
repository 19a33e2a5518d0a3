// Package poll provides the bounded check-and-sleep waits used throughout
// the scraper. There is exactly one page per run and nothing to interleave
// with, so every wait is a plain loop with a predicate and a bound.
package poll

import (
	"context"
	"time"
)

// Until evaluates cond up to attempts times, sleeping delay between
// evaluations. It reports whether cond returned true. A cancelled context
// ends the wait early with false.
func Until(ctx context.Context, attempts int, delay time.Duration, cond func() bool) bool {
	for i := 0; i < attempts; i++ {
		if cond() {
			return true
		}
		if i == attempts-1 {
			break
		}
		if !Sleep(ctx, delay) {
			return false
		}
	}
	return false
}

// For evaluates cond every interval until it returns true or timeout has
// elapsed. cond is always evaluated at least once.
func For(ctx context.Context, timeout, interval time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if !time.Now().Add(interval).Before(deadline) {
			return false
		}
		if !Sleep(ctx, interval) {
			return false
		}
	}
}

// Sleep waits d or until ctx is done, reporting whether the full
// duration elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
