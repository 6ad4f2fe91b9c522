package session

import (
	"context"

	"flickd/internal/sched"
)

// PollAvailability samples the signal source once and publishes the result
// under KeySourceAvailable.
func (o *Orchestrator) PollAvailability() bool {
	ok := o.source.IsAvailable()
	o.store.Set(KeySourceAvailable, ok)
	return ok
}

// Run polls signal source availability every PollInterval until ctx is done
// or the orchestrator is closed.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-o.base.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	o.log.Debug().Dur("interval", o.cfg.PollInterval).Str("source", o.source.Name()).Msg("availability polling started")
	sched.Every(ctx, o.cfg.PollInterval, func(context.Context) { o.PollAvailability() })
	return nil
}
