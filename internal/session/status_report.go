package session

import (
	"time"

	"flickd/pkg/types"
)

// Snapshot returns the current status of both sessions.
func (o *Orchestrator) Snapshot() (TrainingStatus, PredictionStatus) {
	return o.training.snapshot(), o.prediction.snapshot()
}

// StaleCallbacks reports how many classifier callbacks have been dropped.
func (o *Orchestrator) StaleCallbacks() uint64 { return o.stale.Load() }

// Status builds the status response for /status.
func (o *Orchestrator) Status() types.StatusResponse {
	tr, pr := o.Snapshot()
	avail, _ := o.store.Get(KeySourceAvailable)
	ok, _ := avail.(bool)
	now := time.Now()
	return types.StatusResponse{
		Training: types.TrainingStatus{
			State:  tr.State.String(),
			Trials: tr.Trials,
			Target: tr.Target,
			Error:  tr.ErrorCode,
			RunID:  tr.RunID,
		},
		Prediction: types.PredictionStatus{
			State:      pr.State.String(),
			Error:      pr.ErrorCode,
			Detections: pr.Detections,
			RunID:      pr.RunID,
		},
		SourceAvailable:  ok,
		SourceName:       o.source.Name(),
		StaleCallbacks:   o.stale.Load(),
		ListenerFailures: o.store.Failures(),
		UptimeSeconds:    int64(now.Sub(o.startTime).Seconds()),
		ServerTimeUnix:   now.Unix(),
	}
}
