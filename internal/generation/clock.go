package generation

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// sleep waits for d on clock, returning early with ctx.Err() once ctx is done
func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 || ctx.Err() != nil {
		return ctx.Err()
	}
	timer := clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
