package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/directord/pkg/metrics"
)

func timerC(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// SendWithRetry drives send through p's backoff schedule, returning
// the last error once attempts are exhausted so the caller can mark
// the frame NACKED. channel labels the metrics.RetriesTotal counter
// (spec.md §6's per-channel observability), e.g. "job" or "return".
func SendWithRetry(ctx context.Context, p RetryPolicy, channel string, send func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if attempt > 0 {
			metrics.RetriesTotal.WithLabelValues(channel).Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timerC(p.Backoff(attempt - 1)):
			}
		}
		if err := send(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("driver: send failed after %d attempts: %w", p.Attempts, lastErr)
}
