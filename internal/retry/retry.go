// Package retry provides the bounded retry-with-backoff wrapper used around
// every external call in the generation pipeline.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/roomscape/roomscape-api/internal/logger"
)

// DefaultBase is the backoff base used by the pipeline stages.
const DefaultBase = time.Second

// Sleep is swapped out in tests to avoid real waiting.
var Sleep = sleepContext

// Do runs fn up to attempts times. Before attempt k (k >= 2) it waits
// base * 2^(k-2). The delay carries no jitter; callers that need spread
// retries configure distinct bases. After the final failure the last error is
// returned wrapped with the attempt count.
func Do(ctx context.Context, name string, attempts int, base time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		logger.Warn("attempt failed", logger.Fields{
			"operation": name,
			"attempt":   attempt,
			"attempts":  attempts,
			"error":     lastErr.Error(),
		})

		if attempt == attempts {
			break
		}

		delay := Backoff(base, attempt+1)
		logger.Info("retrying", logger.Fields{
			"operation": name,
			"delay_ms":  delay.Milliseconds(),
		})
		if err := Sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, lastErr)
}

// Backoff returns the delay applied before the given attempt (1-based).
// Attempt 1 runs immediately.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return base * (1 << (attempt - 2))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
