package session

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

var errThrottled = errors.New("actuator throttled")

// actuate triggers the actuator under the configured timeout. Failures are
// logged and published under KeyActuatorFault; they are returned to the
// caller but never panic or stop the process.
func (o *Orchestrator) actuate(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := o.cfg.ActuatorTimeout
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := o.actuator.Trigger(tctx)
	if err == nil {
		actuationsTotal.WithLabelValues("ok").Inc()
		o.log.Info().Str("run_id", runID).Dur("dur", time.Since(start)).Msg("actuator triggered")
		return nil
	}
	if ctx.Err() != nil {
		// session stopped while the trigger was in flight
		actuationsTotal.WithLabelValues("cancelled").Inc()
		return ctx.Err()
	}
	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		err = collaboratorTimeoutError{code: CodeActuatorTimeout, collaborator: "actuator", after: timeout}
	}
	code := ErrorCode(err)
	if code == CodeSessionFailed {
		code = CodeActuatorFailed
	}
	actuationsTotal.WithLabelValues(code).Inc()
	o.log.Warn().Err(err).Str("run_id", runID).Str("code", code).Msg("actuator trigger failed")
	o.store.Publish(KeyActuatorFault, ActuatorFault{Code: code, Error: err.Error(), At: time.Now()})
	return err
}

// ThrottledActuator enforces a minimum interval between triggers of the
// wrapped actuator. Triggers arriving too early fail without reaching it.
type ThrottledActuator struct {
	next Actuator
	lim  *rate.Limiter
}

// NewThrottledActuator wraps next so it fires at most once per minInterval.
// A non-positive interval disables throttling.
func NewThrottledActuator(next Actuator, minInterval time.Duration) *ThrottledActuator {
	lim := rate.NewLimiter(rate.Inf, 1)
	if minInterval > 0 {
		lim = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return &ThrottledActuator{next: next, lim: lim}
}

// Trigger implements Actuator.
func (a *ThrottledActuator) Trigger(ctx context.Context) error {
	if !a.lim.Allow() {
		return errThrottled
	}
	return a.next.Trigger(ctx)
}
