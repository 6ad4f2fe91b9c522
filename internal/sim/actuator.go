package sim

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// LogActuator stands in for the stimulator box: each trigger is logged as a
// swipe and counted. Delay simulates the device round trip.
type LogActuator struct {
	Delay time.Duration

	log    zerolog.Logger
	swipes atomic.Uint64
}

func NewLogActuator(delay time.Duration, logger *zerolog.Logger) *LogActuator {
	a := &LogActuator{Delay: delay, log: zerolog.Nop()}
	if logger != nil {
		a.log = logger.With().Str("component", "sim-actuator").Logger()
	}
	return a
}

// Trigger implements session.Actuator.
func (a *LogActuator) Trigger(ctx context.Context) error {
	if a.Delay > 0 {
		t := time.NewTimer(a.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	n := a.swipes.Add(1)
	a.log.Info().Uint64("swipe", n).Msg("swipe")
	return nil
}

// Swipes returns how many triggers completed.
func (a *LogActuator) Swipes() uint64 { return a.swipes.Load() }
