// Package notify forwards session status to connected clients. Store
// publishes are translated into {id, data} events and fanned out over
// WebSocket; client commands arriving on the same socket are routed back to
// the session controller.
package notify

import (
	"flickd/internal/session"
	"flickd/pkg/types"
)

// Event ids sent to clients.
const (
	EventTrainingStatus     = "training-status-changed"
	EventPredictionStatus   = "prediction-status-changed"
	EventSourceAvailability = "eeg-stream-availability-updated"
	EventActionDetected     = "action-detected"
	EventActuatorFault      = "actuator-fault"
	EventCommandFailed      = "command-failed"
)

// Translate maps a store key and the value published under it to a client
// event. ok is false for keys and values clients are not told about.
func Translate(key string, value any) (ev types.Event, ok bool) {
	switch key {
	case session.KeyTrainingStatus:
		st, ok := value.(session.TrainingStatus)
		if !ok {
			return ev, false
		}
		return types.Event{ID: EventTrainingStatus, Data: TrainingData(st)}, true
	case session.KeyPredictionStatus:
		st, ok := value.(session.PredictionStatus)
		if !ok {
			return ev, false
		}
		return types.Event{ID: EventPredictionStatus, Data: PredictionData(st)}, true
	case session.KeySourceAvailable:
		v, ok := value.(bool)
		if !ok {
			return ev, false
		}
		return AvailabilityEvent(v), true
	case session.KeyActionDetected:
		ad, ok := value.(session.ActionDetected)
		if !ok {
			return ev, false
		}
		return types.Event{ID: EventActionDetected, Data: types.ActionDetectedData{
			Label:         ad.Label.String(),
			Probabilities: ad.Probabilities,
			At:            ad.At.UnixMilli(),
			RunID:         ad.RunID,
		}}, true
	case session.KeyActuatorFault:
		f, ok := value.(session.ActuatorFault)
		if !ok {
			return ev, false
		}
		return types.Event{ID: EventActuatorFault, Data: types.ActuatorFaultData{Error: f.Error, Code: f.Code}}, true
	}
	return ev, false
}

// TrainingData converts a training status to its wire form.
func TrainingData(st session.TrainingStatus) types.TrainingStatus {
	return types.TrainingStatus{
		State:  st.State.String(),
		Trials: st.Trials,
		Target: st.Target,
		Error:  st.ErrorCode,
		RunID:  st.RunID,
	}
}

// PredictionData converts a prediction status to its wire form.
func PredictionData(st session.PredictionStatus) types.PredictionStatus {
	return types.PredictionStatus{
		State:      st.State.String(),
		Error:      st.ErrorCode,
		Detections: st.Detections,
		RunID:      st.RunID,
	}
}

func AvailabilityEvent(v bool) types.Event {
	return types.Event{ID: EventSourceAvailability, Data: types.AvailabilityData{Value: v}}
}
