package ndi

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	// capturePollInterval caps how long a single capture call blocks.
	capturePollInterval = 100 * time.Millisecond
	// captureRetryDelay is the pause between empty captures.
	captureRetryDelay = 10 * time.Millisecond
)

// errNoFrame marks an attempt that returned nothing and may be retried.
var errNoFrame = errors.New("no frame")

// captureWithRetry calls attempt until it yields a value, fails with any
// other error, or timeout elapses. Sources need a few polls to warm up
// after a receiver connects, so an empty capture is not a failure.
func captureWithRetry[T any](ctx context.Context, what string, timeout time.Duration, attempt func(poll time.Duration) (*T, error)) (*T, error) {
	if _, err := timeoutMs(timeout); err != nil {
		return nil, err
	}

	start := time.Now()
	deadline := start.Add(timeout)

	attempts := 0
	v, err := retry.DoWithData(
		func() (*T, error) {
			// The first attempt always runs so a zero timeout still polls.
			remaining := time.Until(deadline)
			if attempts > 0 && remaining <= 0 {
				return nil, errNoFrame
			}
			attempts++
			v, err := attempt(max(min(capturePollInterval, remaining), 0))
			if err != nil {
				return nil, err
			}
			if v == nil {
				return nil, errNoFrame
			}
			return v, nil
		},
		retry.Attempts(0),
		retry.Delay(captureRetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, errNoFrame) && time.Until(deadline) > 0
		}),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err == nil {
		return v, nil
	}

	if !errors.Is(err, errNoFrame) && !isContextError(err) {
		return nil, err
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, wrapError(ErrorTypeTimeout, cerr, "capture "+what+" cancelled")
	}
	observe().CaptureTimeout(what)
	return nil, &FrameTimeoutError{Attempts: attempts, Elapsed: time.Since(start)}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
