// Package retry implements the attempt policy shared by the generation
// and dispatch clients: a fixed attempt budget with linearly increasing
// backoff, surfacing the last error once the budget is spent.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultAttempts is the attempt budget for backend calls.
	DefaultAttempts = 3

	// baseDelay is multiplied by the attempt number between tries.
	baseDelay = 350 * time.Millisecond
)

// Do runs fn up to attempts times. Failed attempts are logged with the
// label and followed by a linearly growing wait; the last error is
// returned when all attempts fail. A cancelled context cuts the loop
// short between attempts.
func Do(ctx context.Context, label string, attempts int, fn func() error) error {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		if err := fn(); err != nil {
			lastErr = err
			log.Warn().
				Str("label", label).
				Int("attempt", i).
				Int("attempts", attempts).
				Err(err).
				Msg("Call failed")

			if i == attempts {
				break
			}
			select {
			case <-time.After(time.Duration(i) * baseDelay):
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", label, ctx.Err())
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("%s failed after %d attempts: %w", label, attempts, lastErr)
}
