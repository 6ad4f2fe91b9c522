package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"flickd/internal/sched"
)

// trainingEffect is the side effect performed after a status publish.
type trainingEffect int

const (
	effectNone trainingEffect = iota
	// effectAcquire connects the source, marks the session start and waits
	// out the preroll.
	effectAcquire
	effectMarkRest
	effectMarkAction
	// effectFinish marks the session end and requests a retrain.
	effectFinish
)

// trainingStep is one pass of the training loop: the status to publish, the
// effect performed once it is published, and the state entered after the
// effect completes.
type trainingStep struct {
	publish TrainingState
	trials  int
	effect  trainingEffect
	next    TrainingState
}

// nextTrainingStep is the transition function of the training state machine.
// It covers every state; Complete and Stopped have no automatic successor
// other than a fresh start.
func nextTrainingStep(s TrainingState, trials, target int) trainingStep {
	switch s {
	case TrainingStopped, TrainingComplete:
		return trainingStep{publish: TrainingStarting, trials: 0, effect: effectAcquire, next: TrainingStarting}
	case TrainingStarting:
		return trainingStep{publish: TrainingResting, trials: 0, effect: effectNone, next: TrainingResting}
	case TrainingResting:
		if trials < target {
			return trainingStep{publish: TrainingResting, trials: trials + 1, effect: effectMarkRest, next: TrainingActing}
		}
		return trainingStep{publish: TrainingComplete, trials: trials, effect: effectFinish, next: TrainingComplete}
	case TrainingActing:
		return trainingStep{publish: TrainingActing, trials: trials, effect: effectMarkAction, next: TrainingResting}
	default:
		panic(fmt.Sprintf("session: unknown training state %d", int(s)))
	}
}

type trainingSession struct {
	o *Orchestrator

	// pubMu orders status publishes so a stop can never be overtaken by a
	// publish from the run it cancelled.
	pubMu sync.Mutex

	mu      sync.Mutex
	state   TrainingState
	trials  int
	target  int
	errCode string
	runID   string
	gen     uint64
	scope   *sched.Scope
	acks    chan Label
	expect  Label
	waiting bool
	// markedAt and trialLen describe the trial being waited for; an ack
	// arriving before trialLen has elapsed cannot belong to it.
	markedAt time.Time
	trialLen time.Duration
}

func newTrainingSession(o *Orchestrator) *trainingSession {
	return &trainingSession{o: o, target: o.cfg.Trials}
}

func (t *trainingSession) active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Active()
}

func (t *trainingSession) snapshot() TrainingStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked()
}

func (t *trainingSession) statusLocked() TrainingStatus {
	return TrainingStatus{State: t.state, Trials: t.trials, Target: t.target, ErrorCode: t.errCode, RunID: t.runID}
}

// publish writes the current status to the store if the run identified by
// gen is still current.
func (t *trainingSession) publish(gen uint64) {
	t.pubMu.Lock()
	defer t.pubMu.Unlock()
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return
	}
	st := t.statusLocked()
	t.mu.Unlock()
	transitionsTotal.WithLabelValues("training", st.State.String()).Inc()
	t.o.store.Set(KeyTrainingStatus, st)
}

func (t *trainingSession) start() error {
	t.mu.Lock()
	if t.state.Active() {
		t.mu.Unlock()
		return nil
	}
	t.gen++
	gen := t.gen
	t.runID = uuid.NewString()
	// a completed run still holds its scope and the acquisition
	prev, wasComplete := t.scope, t.state == TrainingComplete
	t.scope = nil
	if prev != nil {
		prev.Cancel()
	}
	if !t.o.source.IsAvailable() {
		t.state = TrainingStopped
		t.errCode = CodeSourceUnavailable
		t.mu.Unlock()
		if wasComplete {
			t.halt()
		}
		err := errSourceUnavailable(t.o.source.Name())
		t.o.log.Warn().Err(err).Msg("training start rejected")
		failuresTotal.WithLabelValues("training", CodeSourceUnavailable).Inc()
		t.publish(gen)
		return err
	}
	step := nextTrainingStep(t.state, t.trials, t.target)
	t.state, t.trials, t.errCode = step.publish, step.trials, ""
	t.scope = sched.NewScope(t.o.base)
	t.acks = make(chan Label, 1)
	t.waiting = false
	scope, runID := t.scope, t.runID
	t.mu.Unlock()

	if wasComplete {
		t.halt()
	}
	t.o.log.Info().Str("run_id", runID).Int("trials", t.target).Msg("training started")
	t.publish(gen)
	t.o.spawn(scope, func(ctx context.Context) { t.run(ctx, gen, step) })
	return nil
}

func (t *trainingSession) stop() {
	t.mu.Lock()
	if t.state == TrainingStopped {
		t.mu.Unlock()
		return
	}
	t.gen++
	gen := t.gen
	t.state = TrainingStopped
	t.errCode = ""
	t.waiting = false
	if t.scope != nil {
		t.scope.Cancel()
	}
	runID := t.runID
	t.mu.Unlock()

	t.halt()
	t.o.log.Info().Str("run_id", runID).Msg("training stopped")
	t.publish(gen)
}

// halt stops acquisition.
func (t *trainingSession) halt() {
	if err := t.o.classifier.Disconnect(); err != nil {
		t.o.log.Warn().Err(err).Msg("halting acquisition failed")
	}
}

// fail force-stops the run identified by gen and publishes a Stopped status
// carrying the error code.
func (t *trainingSession) fail(gen uint64, err error) {
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return
	}
	t.gen++
	gen = t.gen
	code := ErrorCode(err)
	t.state = TrainingStopped
	t.errCode = code
	t.waiting = false
	t.scope.Cancel()
	runID := t.runID
	t.mu.Unlock()

	t.halt()
	failuresTotal.WithLabelValues("training", code).Inc()
	t.o.log.Error().Err(err).Str("run_id", runID).Str("code", code).Msg("training session failed")
	t.publish(gen)
}

// run drives the loop for one run. step is the step whose status start
// already published.
func (t *trainingSession) run(ctx context.Context, gen uint64, step trainingStep) {
	for {
		if err := t.perform(ctx, gen, step); err != nil {
			if ctx.Err() != nil {
				return
			}
			t.fail(gen, err)
			return
		}

		t.mu.Lock()
		if t.gen != gen {
			t.mu.Unlock()
			return
		}
		t.state = step.next
		if step.next == TrainingComplete {
			runID, trials := t.runID, t.trials
			t.mu.Unlock()
			t.o.log.Info().Str("run_id", runID).Int("trials", trials).Msg("training complete")
			return
		}
		step = nextTrainingStep(t.state, t.trials, t.target)
		t.state, t.trials = step.publish, step.trials
		t.mu.Unlock()

		t.publish(gen)
	}
}

func (t *trainingSession) perform(ctx context.Context, gen uint64, step trainingStep) error {
	c := t.o.classifier
	switch step.effect {
	case effectNone:
		return nil
	case effectAcquire:
		if err := t.acquire(ctx); err != nil {
			return err
		}
		if err := c.BeginSession(); err != nil {
			return fmt.Errorf("begin session: %w", err)
		}
		return sched.Sleep(ctx, t.o.cfg.Preroll)
	case effectMarkRest:
		return t.markTrial(ctx, gen, LabelRest, t.o.cfg.RestTrial)
	case effectMarkAction:
		return t.markTrial(ctx, gen, LabelAction, t.o.cfg.ActionTrial)
	case effectFinish:
		if err := c.EndSession(); err != nil {
			return fmt.Errorf("end session: %w", err)
		}
		if err := c.Retrain(); err != nil {
			return fmt.Errorf("retrain: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown training effect %d", int(step.effect))
	}
}

// acquire connects the signal source to the classifier under the acquisition
// timeout.
func (t *trainingSession) acquire(ctx context.Context) error {
	timeout := t.o.cfg.AcquisitionTimeout
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := t.o.classifier.Connect(cctx, t.o.source)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return collaboratorTimeoutError{code: CodeAcquisitionTimeout, collaborator: "classifier acquisition", after: timeout}
	}
	return fmt.Errorf("connect %s: %w", t.o.source.Name(), err)
}

// markTrial marks one trial and waits for the classifier to acknowledge it.
func (t *trainingSession) markTrial(ctx context.Context, gen uint64, label Label, d time.Duration) error {
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return context.Canceled
	}
	acks := t.acks
	// drop anything left over from a previous trial
	select {
	case <-acks:
	default:
	}
	t.expect = label
	t.waiting = true
	t.markedAt, t.trialLen = time.Now(), d
	t.mu.Unlock()

	if err := t.o.classifier.MarkTrial(label, d); err != nil {
		return fmt.Errorf("mark %s trial: %w", label, err)
	}

	wait := d + t.o.cfg.AckGrace
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-acks:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return collaboratorTimeoutError{code: CodeTrialAckTimeout, collaborator: "classifier trial acknowledgement", after: wait}
	}
}

// acknowledge routes a classifier acknowledgement to the waiting trial. It
// reports false when nothing was waiting for label or when the ack came
// before the trial could have ended, as a late ack from a cancelled run does.
func (t *trainingSession) acknowledge(label Label) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.waiting || !t.state.Active() || label != t.expect {
		return false
	}
	if time.Since(t.markedAt) < t.trialLen {
		return false
	}
	t.waiting = false
	select {
	case t.acks <- label:
	default:
	}
	return true
}
