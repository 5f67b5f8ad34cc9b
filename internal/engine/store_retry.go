package engine

import (
	"context"
	"time"
)

// storeRetryBackoff is the short backoff between a failed state-transition
// write and its single retry. The engine's callers log a write that still
// fails after the retry and carry on; the failure does not end the run.
const storeRetryBackoff = 200 * time.Millisecond

// withStoreRetry runs fn, and on error retries it exactly once after a
// short backoff.
func withStoreRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	select {
	case <-time.After(storeRetryBackoff):
	case <-ctx.Done():
		return err
	}
	return fn()
}
