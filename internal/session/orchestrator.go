package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"flickd/internal/sched"
	"flickd/internal/store"
)

// Orchestrator owns the store, both session state machines and the
// collaborators they drive. Construct one per process with New and release it
// with Close.
type Orchestrator struct {
	cfg        Config
	store      *store.Store
	classifier Classifier
	source     SignalSource
	actuator   Actuator
	log        zerolog.Logger

	base   context.Context
	cancel context.CancelFunc
	// tasks tracks every goroutine started in a session scope so Close can
	// wait for them.
	tasks sync.WaitGroup

	// mu serializes control operations so the exclusion check and the start
	// it guards happen atomically.
	mu         sync.Mutex
	training   *trainingSession
	prediction *predictionSession

	stale     atomic.Uint64
	startTime time.Time
}

// New validates cfg, applies defaults and wires the orchestrator as the
// classifier's callback sink.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Classifier == nil {
		return nil, errMissingCollaborator("classifier")
	}
	if cfg.Source == nil {
		return nil, errMissingCollaborator("signal source")
	}
	if cfg.Actuator == nil {
		return nil, errMissingCollaborator("actuator")
	}
	cfg.applyDefaults()
	o := &Orchestrator{
		cfg:        cfg,
		store:      cfg.Store,
		classifier: cfg.Classifier,
		source:     cfg.Source,
		actuator:   cfg.Actuator,
		log:        zerolog.Nop(),
		startTime:  time.Now(),
	}
	if cfg.Logger != nil {
		o.log = cfg.Logger.With().Str("component", "session").Logger()
	}
	if o.store == nil {
		o.store = store.New(DefaultValues())
		o.store.SetLogger(o.log)
	}
	o.base, o.cancel = context.WithCancel(context.Background())
	o.training = newTrainingSession(o)
	o.prediction = newPredictionSession(o)
	o.classifier.SetSink(o)
	return o, nil
}

// Store returns the store status is published to.
func (o *Orchestrator) Store() *store.Store { return o.store }

// StartTraining starts a calibration run. It is a no-op while a run is
// already in progress and is rejected while prediction is active.
func (o *Orchestrator) StartTraining() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.prediction.active() {
		return errConflict("prediction")
	}
	return o.training.start()
}

// StopTraining stops the calibration run. No-op when already stopped.
func (o *Orchestrator) StopTraining() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.training.stop()
	return nil
}

// StartPredicting starts the monitoring loop. It is a no-op while the loop is
// running and is rejected while a training run is active.
func (o *Orchestrator) StartPredicting() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.training.active() {
		return errConflict("training")
	}
	return o.prediction.start()
}

// StopPredicting stops the monitoring loop. No further prediction request is
// issued once it returns.
func (o *Orchestrator) StopPredicting() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prediction.stop()
	return nil
}

// RestartPrediction re-arms the monitoring loop from Acting back to Resting.
// It reports whether the loop was re-armed.
func (o *Orchestrator) RestartPrediction() bool {
	return o.prediction.restart()
}

// OnTrialAcknowledged implements Sink.
func (o *Orchestrator) OnTrialAcknowledged(label Label) {
	if !o.training.acknowledge(label) {
		o.countStale("trial_ack")
		o.log.Debug().Stringer("label", label).Msg("stale trial acknowledgement dropped")
	}
}

// OnPrediction implements Sink. Each (label, probabilities) pair is handled in
// order; at most one action is taken per Acting window.
func (o *Orchestrator) OnPrediction(labels []int, probabilities [][]float64) {
	for i, l := range labels {
		var probs []float64
		if i < len(probabilities) {
			probs = probabilities[i]
		}
		label := Label(l)
		if label != LabelAction {
			o.log.Debug().Int("label", l).Floats64("probabilities", probs).Msg("prediction ignored")
			continue
		}
		if !o.prediction.detect(probs) {
			o.countStale("prediction")
			o.log.Debug().Floats64("probabilities", probs).Msg("stale prediction dropped")
		}
	}
}

// TriggerActuator fires the actuator once outside any session, for device
// checks. Failures are reported like session actuations.
func (o *Orchestrator) TriggerActuator(ctx context.Context) error {
	return o.actuate(ctx, "")
}

// Ready reports whether the signal source is delivering data.
func (o *Orchestrator) Ready() bool { return o.source.IsAvailable() }

// Close stops both sessions and waits for their goroutines to exit.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	o.training.stop()
	o.prediction.stop()
	o.mu.Unlock()
	o.cancel()
	o.tasks.Wait()
	return nil
}

// spawn runs fn in scope and tracks it for Close. It reports false when the
// scope is already cancelled.
func (o *Orchestrator) spawn(scope *sched.Scope, fn func(ctx context.Context)) bool {
	o.tasks.Add(1)
	ok := scope.Go(func(ctx context.Context) error {
		defer o.tasks.Done()
		fn(ctx)
		return nil
	})
	if !ok {
		o.tasks.Done()
	}
	return ok
}

func (o *Orchestrator) countStale(kind string) {
	o.stale.Add(1)
	staleCallbacksTotal.WithLabelValues(kind).Inc()
}
