package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"flickd/internal/sched"
)

// predictionEvent drives the prediction state machine.
type predictionEvent int

const (
	evPredictStart predictionEvent = iota
	// evRestElapsed: the rest window ended.
	evRestElapsed
	// evActionDetected: a positive prediction arrived.
	evActionDetected
	// evRestart: external re-arm request.
	evRestart
	evPredictStop
)

// nextPredictionState is the transition function of the prediction state
// machine. ok is false when the event does not apply to state s.
func nextPredictionState(s PredictionState, ev predictionEvent) (next PredictionState, ok bool) {
	switch ev {
	case evPredictStop:
		return PredictionStopped, s != PredictionStopped
	case evPredictStart:
		return PredictionResting, s == PredictionStopped
	}
	switch s {
	case PredictionStopped:
		return s, false
	case PredictionResting:
		if ev == evRestElapsed {
			return PredictionActing, true
		}
		return s, false
	case PredictionActing:
		if ev == evActionDetected || ev == evRestart {
			return PredictionResting, true
		}
		return s, false
	default:
		panic(fmt.Sprintf("session: unknown prediction state %d", int(s)))
	}
}

type predictionSession struct {
	o *Orchestrator

	pubMu sync.Mutex

	mu         sync.Mutex
	state      PredictionState
	detections int
	errCode    string
	runID      string
	gen        uint64
	scope      *sched.Scope
	wake       chan struct{}
	// announced is set when detect or restart already published the
	// Resting status the loop is about to see.
	announced bool
}

func newPredictionSession(o *Orchestrator) *predictionSession {
	return &predictionSession{o: o}
}

func (p *predictionSession) active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state != PredictionStopped
}

func (p *predictionSession) snapshot() PredictionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked()
}

func (p *predictionSession) statusLocked() PredictionStatus {
	return PredictionStatus{State: p.state, Detections: p.detections, ErrorCode: p.errCode, RunID: p.runID}
}

func (p *predictionSession) publish(gen uint64) {
	p.publishState(gen, nil)
}

// publishState publishes the current status if the run identified by gen is
// current and, when want is set, the session is still in *want.
func (p *predictionSession) publishState(gen uint64, want *PredictionState) {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()
	p.mu.Lock()
	if p.gen != gen || (want != nil && p.state != *want) {
		p.mu.Unlock()
		return
	}
	st := p.statusLocked()
	p.mu.Unlock()
	p.setStatus(st)
}

// setStatus writes st to the store. Callers hold pubMu.
func (p *predictionSession) setStatus(st PredictionStatus) {
	transitionsTotal.WithLabelValues("prediction", st.State.String()).Inc()
	p.o.store.Set(KeyPredictionStatus, st)
}

func (p *predictionSession) start() error {
	p.mu.Lock()
	next, ok := nextPredictionState(p.state, evPredictStart)
	if !ok {
		p.mu.Unlock()
		return nil
	}
	p.gen++
	gen := p.gen
	p.state = next
	p.detections = 0
	p.errCode = ""
	p.runID = uuid.NewString()
	p.scope = sched.NewScope(p.o.base)
	p.wake = make(chan struct{}, 1)
	p.announced = false
	scope, runID := p.scope, p.runID
	p.mu.Unlock()

	p.o.log.Info().Str("run_id", runID).Msg("prediction started")
	p.o.spawn(scope, func(ctx context.Context) { p.run(ctx, gen) })
	return nil
}

func (p *predictionSession) stop() {
	p.stopWith(0, false, "")
}

// stopWith stops the session. When guarded it only stops the run identified
// by gen; code is published as the error code.
func (p *predictionSession) stopWith(gen uint64, guarded bool, code string) {
	p.mu.Lock()
	if guarded && p.gen != gen {
		p.mu.Unlock()
		return
	}
	next, ok := nextPredictionState(p.state, evPredictStop)
	if !ok {
		p.mu.Unlock()
		return
	}
	p.gen++
	gen = p.gen
	p.state = next
	p.errCode = code
	if p.scope != nil {
		p.scope.Cancel()
	}
	runID := p.runID
	p.mu.Unlock()

	if code != "" {
		failuresTotal.WithLabelValues("prediction", code).Inc()
		p.o.log.Error().Str("run_id", runID).Str("code", code).Msg("prediction session failed")
	} else {
		p.o.log.Info().Str("run_id", runID).Msg("prediction stopped")
	}
	p.publish(gen)
}

// run is the monitoring loop. It is the only goroutine issuing prediction
// requests for its run.
func (p *predictionSession) run(ctx context.Context, gen uint64) {
	window := p.o.cfg.PredictionWindow
	for {
		p.mu.Lock()
		if p.gen != gen {
			p.mu.Unlock()
			return
		}
		state, wake, announced := p.state, p.wake, p.announced
		p.announced = false
		// a pending wake-up is already reflected in state
		select {
		case <-wake:
		default:
		}
		p.mu.Unlock()

		if !announced {
			// skipped when detect or restart moved on and published first
			p.publishState(gen, &state)
		}

		switch state {
		case PredictionResting:
			if !p.suspend(ctx, p.o.cfg.PredictionRest, wake) {
				return
			}
			p.mu.Lock()
			if p.gen == gen && p.state == PredictionResting {
				p.state, _ = nextPredictionState(p.state, evRestElapsed)
			}
			p.mu.Unlock()
		case PredictionActing:
			// Requests are issued under the lock so a concurrent stop either
			// happens before the request or waits for it.
			p.mu.Lock()
			var err error
			if p.gen == gen && p.state == PredictionActing {
				err = p.o.classifier.RequestPrediction(window)
			}
			p.mu.Unlock()
			if err != nil {
				p.o.log.Error().Err(err).Msg("prediction request failed")
				p.stopWith(gen, true, CodeSessionFailed)
				return
			}
			if !p.suspend(ctx, p.o.cfg.PredictionAction, wake) {
				return
			}
		default:
			return
		}
	}
}

// suspend waits for d, an early wake-up, or cancellation. It reports false
// when the run was cancelled.
func (p *predictionSession) suspend(ctx context.Context, d time.Duration, wake <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-wake:
		return true
	case <-timer.C:
		return true
	}
}

// signal wakes the loop. Callers hold p.mu so the loop drains a wake-up
// together with the state change that caused it.
func (p *predictionSession) signal(wake chan struct{}) {
	select {
	case wake <- struct{}{}:
	default:
	}
}

// detect handles a positive prediction. It reports false when the session is
// not in Acting, which makes the prediction stale.
func (p *predictionSession) detect(probabilities []float64) bool {
	p.pubMu.Lock()
	p.mu.Lock()
	next, ok := nextPredictionState(p.state, evActionDetected)
	if !ok {
		p.mu.Unlock()
		p.pubMu.Unlock()
		return false
	}
	p.state = next
	p.detections++
	p.announced = true
	p.signal(p.wake)
	st := p.statusLocked()
	gen, scope, runID := p.gen, p.scope, p.runID
	p.mu.Unlock()
	p.setStatus(st)
	p.pubMu.Unlock()

	p.o.log.Info().Str("run_id", runID).Floats64("probabilities", probabilities).Msg("action detected")
	p.o.store.Publish(KeyActionDetected, ActionDetected{
		Label:         LabelAction,
		Probabilities: append([]float64(nil), probabilities...),
		At:            time.Now(),
		RunID:         runID,
	})
	p.o.spawn(scope, func(ctx context.Context) {
		err := p.o.actuate(ctx, runID)
		if err != nil && IsCollaboratorTimeout(err) && p.o.cfg.StopOnActuatorTimeout {
			p.stopWith(gen, true, CodeActuatorTimeout)
		}
	})
	return true
}

// restart moves Acting back to Resting. It reports whether it did.
func (p *predictionSession) restart() bool {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()
	p.mu.Lock()
	next, ok := nextPredictionState(p.state, evRestart)
	if !ok {
		p.mu.Unlock()
		return false
	}
	p.state = next
	p.announced = true
	p.signal(p.wake)
	st := p.statusLocked()
	p.mu.Unlock()
	p.setStatus(st)
	return true
}
