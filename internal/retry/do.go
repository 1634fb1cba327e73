package retry

import (
	"context"
	"time"
)

// BaseDelay is the fixed pause between RPC attempts mandated by
// spec.md §4.1/§7 ("a fixed 1s pause between attempts"). It is a
// variable, not a const, so tests can shrink it.
var BaseDelay = time.Second

// Do calls fn up to attempts times (attempts >= 1), pausing BaseDelay
// between tries. It returns the last error if every attempt fails, or
// immediately if ctx is cancelled during the pause.
//
// Each failure is run through Classify: a Terminal verdict (an
// explicitly wrapped Terminal error, a non-retryable JSON-RPC code, or
// a message matching terminalMessageTokens) stops the loop immediately
// instead of burning the remaining attempts against a call that cannot
// succeed. Anything else — including the unknown_transient_default
// fallback — keeps retrying, matching spec.md §4.1's "retries up to
// retryAttempts ... fails after exhaustion" for ordinary RPC flakiness.
func Do(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if Classify(lastErr).Class == ClassTerminal {
			return lastErr
		}
		if attempt < attempts-1 {
			timer := time.NewTimer(BaseDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}
	return lastErr
}
