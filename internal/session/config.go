package session

import (
	"time"

	"github.com/rs/zerolog"

	"flickd/internal/store"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultTrials             = 10
	defaultPreroll            = 2 * time.Second
	defaultRestTrial          = 4 * time.Second
	defaultActionTrial        = 4 * time.Second
	defaultAckGrace           = 5 * time.Second
	defaultAcquisitionTimeout = 10 * time.Second
	defaultPredictionRest     = 2 * time.Second
	defaultPredictionAction   = 2 * time.Second
	defaultPredictionWindow   = 2 * time.Second
	defaultActuatorTimeout    = 2 * time.Second
	defaultPollInterval       = time.Second
)

// Config encapsulates collaborators and tunables for Orchestrator
// construction.
type Config struct {
	Classifier Classifier
	Source     SignalSource
	Actuator   Actuator
	// Store receives status; a fresh store seeded with DefaultValues is
	// created when nil.
	Store  *store.Store
	Logger *zerolog.Logger

	// Training
	Trials      int
	Preroll     time.Duration
	RestTrial   time.Duration
	ActionTrial time.Duration
	// AckGrace is added to a trial's duration to bound the wait for its
	// acknowledgement.
	AckGrace           time.Duration
	AcquisitionTimeout time.Duration

	// Prediction
	PredictionRest   time.Duration
	PredictionAction time.Duration
	PredictionWindow time.Duration
	ActuatorTimeout  time.Duration
	// StopOnActuatorTimeout stops the prediction session when the actuator
	// times out. Other actuator failures are only reported.
	StopOnActuatorTimeout bool

	PollInterval time.Duration
}

// DefaultValues is the initial content of a store created by New.
func DefaultValues() map[string]any {
	return map[string]any{
		KeySourceAvailable:  false,
		KeyTrainingStatus:   TrainingStatus{State: TrainingStopped},
		KeyPredictionStatus: PredictionStatus{State: PredictionStopped},
	}
}

func (c *Config) applyDefaults() {
	if c.Trials <= 0 {
		c.Trials = defaultTrials
	}
	if c.Preroll <= 0 {
		c.Preroll = defaultPreroll
	}
	if c.RestTrial <= 0 {
		c.RestTrial = defaultRestTrial
	}
	if c.ActionTrial <= 0 {
		c.ActionTrial = defaultActionTrial
	}
	if c.AckGrace <= 0 {
		c.AckGrace = defaultAckGrace
	}
	if c.AcquisitionTimeout <= 0 {
		c.AcquisitionTimeout = defaultAcquisitionTimeout
	}
	if c.PredictionRest <= 0 {
		c.PredictionRest = defaultPredictionRest
	}
	if c.PredictionAction <= 0 {
		c.PredictionAction = defaultPredictionAction
	}
	if c.PredictionWindow <= 0 {
		c.PredictionWindow = defaultPredictionWindow
	}
	if c.ActuatorTimeout <= 0 {
		c.ActuatorTimeout = defaultActuatorTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
}
