package harness

import (
	"context"
	"errors"
	"time"
)

var errPollTimeout = errors.New("poll timeout")

// poll evaluates cond immediately and then every interval until it returns
// true, the timeout elapses, or ctx is done. The ticker and timer are always
// stopped before poll returns, so nothing stays scheduled afterward.
func poll(ctx context.Context, interval, timeout time.Duration, cond func() bool) error {
	if cond() {
		return nil
	}

	if interval <= 0 {
		interval = defaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			// One last look so output that landed with the deadline still counts.
			if cond() {
				return nil
			}

			return errPollTimeout
		case <-ticker.C:
			if cond() {
				return nil
			}
		}
	}
}

// sleep waits for d unless ctx finishes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
