package session

import (
	"context"
	"time"
)

// Classifier is the contact surface of the external classifier engine.
// Acknowledgements and predictions are reported back through the Sink given
// to SetSink, asynchronously: implementations must not call the Sink from
// within one of these methods.
type Classifier interface {
	// SetSink installs the receiver of classifier callbacks.
	SetSink(Sink)
	// Connect attaches the signal source and begins acquisition. It may block
	// until the engine is ready; ctx carries the acquisition timeout.
	Connect(ctx context.Context, src SignalSource) error
	// Disconnect halts acquisition. Safe to call when not connected.
	Disconnect() error
	// BeginSession marks the start of a training data set.
	BeginSession() error
	// MarkTrial marks a labelled trial lasting d. The engine acknowledges it
	// with Sink.OnTrialAcknowledged once the trial has been captured.
	MarkTrial(label Label, d time.Duration) error
	// EndSession marks the end of the training data set.
	EndSession() error
	// Retrain asks the engine to train on the data collected so far.
	Retrain() error
	// RequestPrediction asks for a prediction over the last window d. The
	// result arrives through Sink.OnPrediction.
	RequestPrediction(window time.Duration) error
}

// Sink receives classifier callbacks.
type Sink interface {
	OnTrialAcknowledged(label Label)
	OnPrediction(labels []int, probabilities [][]float64)
}

// SignalSource is the biosignal stream the classifier reads from.
type SignalSource interface {
	Name() string
	IsAvailable() bool
}

// Actuator is the device triggered on a detected action intent.
type Actuator interface {
	Trigger(ctx context.Context) error
}
