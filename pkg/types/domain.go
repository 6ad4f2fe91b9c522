package types

// Event is the outward notification shape forwarded to clients unchanged.
type Event struct {
	// Stable event identifier.
	// example: training-status-changed
	ID string `json:"id" example:"training-status-changed"`
	// Event payload; its shape depends on ID.
	Data any `json:"data"`
}

// Command is an inbound client message. It mirrors Event so a client can use
// one envelope in both directions.
type Command struct {
	// Command identifier, e.g. set-training-btn-state.
	// example: set-training-btn-state
	ID string `json:"id" example:"set-training-btn-state"`
	// Command argument, e.g. "start" or "stop".
	Data any `json:"data,omitempty"`
}

// AvailabilityData is the payload of eeg-stream-availability-updated.
type AvailabilityData struct {
	// example: true
	Value bool `json:"value" example:"true"`
}

// ActionDetectedData is the payload of action-detected.
type ActionDetectedData struct {
	// example: action
	Label string `json:"label" example:"action"`
	// Class probabilities indexed by label.
	Probabilities []float64 `json:"probabilities"`
	// Detection time in unix milliseconds.
	At    int64  `json:"at"`
	RunID string `json:"run_id,omitempty"`
}

// ActuatorFaultData is the payload of actuator-fault.
type ActuatorFaultData struct {
	// example: actuator timeout
	Error string `json:"error" example:"actuator did not respond within 2s"`
	// example: actuator_timeout
	Code string `json:"code" example:"actuator_timeout"`
}

// CommandFailedData is sent back to a client whose command was rejected.
type CommandFailedData struct {
	Command string `json:"command"`
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
}
