package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Clock tracks conversation progress for the stall watchdog. Every
// completed generation or dispatch marks it; the monitor requests a
// restart when it goes quiet too long.
type Clock struct {
	lastMs  atomic.Int64
	restart atomic.Bool
	now     func() time.Time
}

// NewClock returns a Clock marked at the current time.
func NewClock() *Clock {
	c := &Clock{now: time.Now}
	c.Mark()
	return c
}

// Mark records that the conversation made progress.
func (c *Clock) Mark() {
	c.lastMs.Store(c.now().UnixMilli())
}

// Idle reports the time since the last mark.
func (c *Clock) Idle() time.Duration {
	return time.Duration(c.now().UnixMilli()-c.lastMs.Load()) * time.Millisecond
}

// RequestRestart flags the running session for restart.
func (c *Clock) RequestRestart() {
	c.restart.Store(true)
}

// RestartRequested reports whether a restart is pending.
func (c *Clock) RestartRequested() bool {
	return c.restart.Load()
}

// ClearRestart resets the flag before a new session starts.
func (c *Clock) ClearRestart() {
	c.restart.Store(false)
}

// Monitor watches the clock until the context ends, requesting a
// restart once progress stops for longer than stallAfter. The in-flight
// backend call is not cancelled; the session notices the flag at its
// next checkpoint.
func Monitor(ctx context.Context, clock *Clock, stallAfter time.Duration) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			idle := clock.Idle()
			if idle > stallAfter && !clock.RestartRequested() {
				log.Warn().
					Dur("idle", idle).
					Msg("No progress, requesting session restart")
				clock.RequestRestart()
			}
		}
	}
}
