// Package sim provides stand-ins for the hardware side of flickd: a
// classifier engine, a headset signal source and a log-only actuator. They
// let the daemon run end to end on a machine with no devices attached.
package sim

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"flickd/internal/session"
)

var (
	ErrNotConnected = errors.New("sim: classifier not connected")
	ErrNoSession    = errors.New("sim: no training session open")
	ErrNotTrained   = errors.New("sim: classifier not trained")
)

// ClassifierConfig tunes the simulated engine.
type ClassifierConfig struct {
	// ActionProbability is the chance that a prediction reports the action
	// label. Values outside [0,1] are clamped.
	ActionProbability float64
	// RequireTraining makes RequestPrediction fail until Retrain has run.
	RequireTraining bool
	// ConnectPoll is how often Connect re-checks an unavailable source.
	ConnectPoll time.Duration
	// Seed makes the prediction sequence reproducible when non-zero.
	Seed   uint64
	Logger *zerolog.Logger
}

// Classifier is a simulated classifier engine. Trials are acknowledged once
// their duration has elapsed and predictions are drawn at random after the
// requested window. Every callback is delivered from a timer goroutine.
type Classifier struct {
	cfg ClassifierConfig
	log zerolog.Logger

	mu        sync.Mutex
	sink      session.Sink
	rng       *rand.Rand
	connected bool
	open      bool
	trials    map[session.Label]int
	trained   bool
	pending   map[*time.Timer]struct{}
}

// NewClassifier returns a disconnected simulated classifier.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	if cfg.ActionProbability < 0 {
		cfg.ActionProbability = 0
	}
	if cfg.ActionProbability > 1 {
		cfg.ActionProbability = 1
	}
	if cfg.ConnectPoll <= 0 {
		cfg.ConnectPoll = 100 * time.Millisecond
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	c := &Classifier{
		cfg:     cfg,
		log:     zerolog.Nop(),
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		trials:  make(map[session.Label]int),
		pending: make(map[*time.Timer]struct{}),
	}
	if cfg.Logger != nil {
		c.log = cfg.Logger.With().Str("component", "sim-classifier").Logger()
	}
	return c
}

// SetSink implements session.Classifier.
func (c *Classifier) SetSink(s session.Sink) {
	c.mu.Lock()
	c.sink = s
	c.mu.Unlock()
}

// Connect waits until src reports data or ctx is done.
func (c *Classifier) Connect(ctx context.Context, src session.SignalSource) error {
	if !src.IsAvailable() {
		c.log.Info().Str("source", src.Name()).Msg("waiting for signal source")
		ticker := time.NewTicker(c.cfg.ConnectPoll)
		defer ticker.Stop()
		for !src.IsAvailable() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	c.log.Info().Str("source", src.Name()).Msg("connected")
	return nil
}

// Disconnect drops pending acknowledgements and closes any open session.
func (c *Classifier) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.open = false
	c.stopPendingLocked()
	return nil
}

func (c *Classifier) BeginSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ErrNotConnected
	}
	c.open = true
	c.trials = make(map[session.Label]int)
	return nil
}

// MarkTrial schedules the acknowledgement of a trial after d.
func (c *Classifier) MarkTrial(label session.Label, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ErrNotConnected
	}
	if !c.open {
		return ErrNoSession
	}
	c.trials[label]++
	c.afterLocked(d, func(s session.Sink) { s.OnTrialAcknowledged(label) })
	return nil
}

func (c *Classifier) EndSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNoSession
	}
	c.open = false
	return nil
}

// Retrain marks the classifier trained when both classes have data.
func (c *Classifier) Retrain() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rest, action := c.trials[session.LabelRest], c.trials[session.LabelAction]
	if rest == 0 || action == 0 {
		return errors.New("sim: retrain needs trials of both labels")
	}
	c.trained = true
	c.log.Info().Int("rest", rest).Int("action", action).Msg("retrained")
	return nil
}

// RequestPrediction draws a label after window and reports it.
func (c *Classifier) RequestPrediction(window time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.RequireTraining && !c.trained {
		return ErrNotTrained
	}
	p := c.cfg.ActionProbability
	// jitter the reported confidence around the configured probability
	conf := p + (c.rng.Float64()-0.5)*0.1
	conf = min(max(conf, 0), 1)
	label := int(session.LabelRest)
	if c.rng.Float64() < p {
		label = int(session.LabelAction)
	}
	probs := []float64{1 - conf, conf}
	c.afterLocked(window, func(s session.Sink) {
		s.OnPrediction([]int{label}, [][]float64{probs})
	})
	return nil
}

// Trained reports whether Retrain has succeeded.
func (c *Classifier) Trained() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trained
}

// Close stops all pending callbacks.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopPendingLocked()
	return nil
}

func (c *Classifier) afterLocked(d time.Duration, deliver func(session.Sink)) {
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		c.mu.Lock()
		if _, ok := c.pending[t]; !ok {
			c.mu.Unlock()
			return
		}
		delete(c.pending, t)
		sink := c.sink
		c.mu.Unlock()
		if sink != nil {
			deliver(sink)
		}
	})
	c.pending[t] = struct{}{}
}

func (c *Classifier) stopPendingLocked() {
	for t := range c.pending {
		t.Stop()
	}
	clear(c.pending)
}
