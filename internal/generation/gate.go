package generation

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Gate enforces a minimum interval between the end of one outbound attempt
// and the start of the next. It is not safe for concurrent use; Client
// serializes access.
type Gate struct {
	clock    clockwork.Clock
	interval time.Duration
	last     time.Time
}

// NewGate creates a gate; the first Wait never blocks
func NewGate(clock clockwork.Clock, interval time.Duration) *Gate {
	return &Gate{clock: clock, interval: interval}
}

// Wait blocks until the interval since the last Done has elapsed and
// returns how long it waited
func (g *Gate) Wait(ctx context.Context) (time.Duration, error) {
	if g.last.IsZero() || g.interval <= 0 {
		return 0, ctx.Err()
	}
	remaining := g.interval - g.clock.Since(g.last)
	if remaining <= 0 {
		return 0, ctx.Err()
	}
	if err := sleep(ctx, g.clock, remaining); err != nil {
		return 0, err
	}
	return remaining, nil
}

// Done marks the end of an attempt, successful or not
func (g *Gate) Done() {
	g.last = g.clock.Now()
}
