package session

import "time"

// Store keys written by this package.
const (
	KeyTrainingStatus   = "training_status"
	KeyPredictionStatus = "prediction_status"
	KeySourceAvailable  = "eeg_stream_is_available"
	KeyActionDetected   = "action-detected"
	KeyActuatorFault    = "actuator-fault"
)

// Label is a classifier class label.
type Label int

const (
	LabelRest   Label = 0
	LabelAction Label = 1
)

func (l Label) String() string {
	switch l {
	case LabelRest:
		return "rest"
	case LabelAction:
		return "action"
	default:
		return "unknown"
	}
}

// TrainingState is the state of the training state machine.
type TrainingState int

const (
	TrainingStopped TrainingState = iota
	TrainingStarting
	TrainingResting
	TrainingActing
	TrainingComplete
)

func (s TrainingState) String() string {
	switch s {
	case TrainingStopped:
		return "Stopped"
	case TrainingStarting:
		return "Starting"
	case TrainingResting:
		return "Resting"
	case TrainingActing:
		return "Acting"
	case TrainingComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Active reports whether a run is in progress. Complete is terminal and does
// not count as active.
func (s TrainingState) Active() bool {
	return s == TrainingStarting || s == TrainingResting || s == TrainingActing
}

// PredictionState is the state of the prediction state machine.
type PredictionState int

const (
	PredictionStopped PredictionState = iota
	PredictionResting
	PredictionActing
)

func (s PredictionState) String() string {
	switch s {
	case PredictionStopped:
		return "Stopped"
	case PredictionResting:
		return "Resting"
	case PredictionActing:
		return "Acting"
	default:
		return "Unknown"
	}
}

// TrainingStatus is published under KeyTrainingStatus on every training
// transition. ErrorCode is empty unless the run stopped on a failure.
type TrainingStatus struct {
	State     TrainingState
	Trials    int
	Target    int
	ErrorCode string
	RunID     string
}

// PredictionStatus is published under KeyPredictionStatus on every
// prediction transition.
type PredictionStatus struct {
	State      PredictionState
	Detections int
	ErrorCode  string
	RunID      string
}

// ActionDetected is published under KeyActionDetected when a positive
// prediction is accepted.
type ActionDetected struct {
	Label         Label
	Probabilities []float64
	At            time.Time
	RunID         string
}

// ActuatorFault is published under KeyActuatorFault when a trigger fails.
type ActuatorFault struct {
	Code  string
	Error string
	At    time.Time
}
