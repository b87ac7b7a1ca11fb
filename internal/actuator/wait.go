package actuator

import (
	"context"
	"time"
)

// DefaultPollInterval is how often backends re-check a wait condition.
const DefaultPollInterval = 500 * time.Millisecond

// Poll calls cond until it reports true, the timeout elapses or ctx ends.
// It returns false without error on timeout. The condition is always checked
// at least once.
func Poll(ctx context.Context, timeout, interval time.Duration, cond func(context.Context) (bool, error)) (bool, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := cond(ctx)
		if err != nil || ok {
			return ok, err
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}
