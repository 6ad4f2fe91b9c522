package types

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: training session is active
	Error string `json:"error" example:"training session is active"`
	// HTTP status code.
	// example: 409
	Code int `json:"code" example:"409"`
	// Machine readable reason, when the error maps to one.
	// example: session_conflict
	Reason string `json:"reason,omitempty" example:"session_conflict"`
}

// OKResponse acknowledges a control request.
type OKResponse struct {
	// example: true
	OK bool `json:"ok" example:"true"`
	// Status snapshot taken right after the request was applied.
	Status StatusResponse `json:"status"`
}

// TrainingStatus summarizes the calibration session for /status.
type TrainingStatus struct {
	// Current state: Stopped, Starting, Resting, Acting or Complete.
	// example: Resting
	State string `json:"state" example:"Resting"`
	// Trials started so far in this run.
	// example: 2
	Trials int `json:"trials" example:"2"`
	// Trials configured per run.
	// example: 10
	Target int `json:"target" example:"10"`
	// Error code of the last failure stop, empty after a manual stop.
	// example: trial_ack_timeout
	Error string `json:"error,omitempty" example:"trial_ack_timeout"`
	// Identifier of the current or last run.
	RunID string `json:"run_id,omitempty"`
}

// PredictionStatus summarizes the monitoring loop for /status.
type PredictionStatus struct {
	// Current state: Stopped, Resting or Acting.
	// example: Acting
	State string `json:"state" example:"Acting"`
	// Error code of the last failure stop.
	Error string `json:"error,omitempty"`
	// Positive detections in the current or last run.
	// example: 3
	Detections int `json:"detections" example:"3"`
	// Identifier of the current or last run.
	RunID string `json:"run_id,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Training   TrainingStatus   `json:"training"`
	Prediction PredictionStatus `json:"prediction"`
	// Whether the signal source currently reports data.
	// example: true
	SourceAvailable bool `json:"eeg_stream_is_available" example:"true"`
	// Name of the configured signal source.
	// example: headset-sim
	SourceName string `json:"source_name,omitempty" example:"headset-sim"`
	// Classifier callbacks dropped because their session had moved on.
	// example: 0
	StaleCallbacks uint64 `json:"stale_callbacks" example:"0"`
	// Store listener invocations that failed.
	// example: 0
	ListenerFailures uint64 `json:"listener_failures" example:"0"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
