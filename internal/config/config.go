package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"flickd/internal/session"
)

// Config is the daemon configuration. Durations are expressed in seconds.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`
	// Simulate wires simulated classifier, headset and actuator devices.
	Simulate bool `json:"simulate" yaml:"simulate" toml:"simulate"`

	PollIntervalSeconds    float64 `json:"poll_interval_seconds" yaml:"poll_interval_seconds" toml:"poll_interval_seconds"`
	ShutdownTimeoutSeconds float64 `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds" toml:"shutdown_timeout_seconds"`

	Training   Training   `json:"training" yaml:"training" toml:"training"`
	Prediction Prediction `json:"prediction" yaml:"prediction" toml:"prediction"`
	Simulator  Simulator  `json:"simulator" yaml:"simulator" toml:"simulator"`
	CORS       CORS       `json:"cors" yaml:"cors" toml:"cors"`
	Events     Events     `json:"events" yaml:"events" toml:"events"`
}

type Training struct {
	Trials                    int     `json:"trials" yaml:"trials" toml:"trials"`
	PrerollSeconds            float64 `json:"preroll_seconds" yaml:"preroll_seconds" toml:"preroll_seconds"`
	RestSeconds               float64 `json:"rest_seconds" yaml:"rest_seconds" toml:"rest_seconds"`
	ActionSeconds             float64 `json:"action_seconds" yaml:"action_seconds" toml:"action_seconds"`
	AckGraceSeconds           float64 `json:"ack_grace_seconds" yaml:"ack_grace_seconds" toml:"ack_grace_seconds"`
	AcquisitionTimeoutSeconds float64 `json:"acquisition_timeout_seconds" yaml:"acquisition_timeout_seconds" toml:"acquisition_timeout_seconds"`
}

type Prediction struct {
	RestSeconds            float64 `json:"rest_seconds" yaml:"rest_seconds" toml:"rest_seconds"`
	ActionSeconds          float64 `json:"action_seconds" yaml:"action_seconds" toml:"action_seconds"`
	WindowSeconds          float64 `json:"window_seconds" yaml:"window_seconds" toml:"window_seconds"`
	ActuatorTimeoutSeconds float64 `json:"actuator_timeout_seconds" yaml:"actuator_timeout_seconds" toml:"actuator_timeout_seconds"`
	// ActuatorMinIntervalSeconds throttles actuations; 0 disables throttling.
	ActuatorMinIntervalSeconds float64 `json:"actuator_min_interval_seconds" yaml:"actuator_min_interval_seconds" toml:"actuator_min_interval_seconds"`
	StopOnActuatorTimeout      bool    `json:"stop_on_actuator_timeout" yaml:"stop_on_actuator_timeout" toml:"stop_on_actuator_timeout"`
}

type Simulator struct {
	HeadsetName       string  `json:"headset_name" yaml:"headset_name" toml:"headset_name"`
	SampleRate        int     `json:"sample_rate" yaml:"sample_rate" toml:"sample_rate"`
	AutoStartHeadset  bool    `json:"auto_start_headset" yaml:"auto_start_headset" toml:"auto_start_headset"`
	ActionProbability float64 `json:"action_probability" yaml:"action_probability" toml:"action_probability"`
	RequireTraining   bool    `json:"require_training" yaml:"require_training" toml:"require_training"`
	ActuatorDelayMS   int     `json:"actuator_delay_ms" yaml:"actuator_delay_ms" toml:"actuator_delay_ms"`
	Seed              uint64  `json:"seed" yaml:"seed" toml:"seed"`
}

type CORS struct {
	Enabled        bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods" yaml:"allowed_methods" toml:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers" yaml:"allowed_headers" toml:"allowed_headers"`
}

type Events struct {
	SendBuffer          int     `json:"send_buffer" yaml:"send_buffer" toml:"send_buffer"`
	WriteTimeoutSeconds float64 `json:"write_timeout_seconds" yaml:"write_timeout_seconds" toml:"write_timeout_seconds"`
	PingIntervalSeconds float64 `json:"ping_interval_seconds" yaml:"ping_interval_seconds" toml:"ping_interval_seconds"`
	// AllowAllOrigins disables the WebSocket same-origin check.
	AllowAllOrigins bool `json:"allow_all_origins" yaml:"allow_all_origins" toml:"allow_all_origins"`
}

// Default returns the configuration used when no file is found.
func Default() Config {
	c := seed()
	c.ApplyDefaults()
	return c
}

// seed holds the boolean defaults. ApplyDefaults cannot tell an explicit
// false from an absent key, so files are decoded on top of it.
func seed() Config {
	c := Config{Simulate: true}
	c.Simulator.AutoStartHeadset = true
	return c
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
	setF(&c.PollIntervalSeconds, 1)
	setF(&c.ShutdownTimeoutSeconds, 5)

	t := &c.Training
	if t.Trials == 0 {
		t.Trials = 10
	}
	setF(&t.PrerollSeconds, 2)
	setF(&t.RestSeconds, 4)
	setF(&t.ActionSeconds, 4)
	setF(&t.AckGraceSeconds, 5)
	setF(&t.AcquisitionTimeoutSeconds, 10)

	p := &c.Prediction
	setF(&p.RestSeconds, 2)
	setF(&p.ActionSeconds, 2)
	setF(&p.WindowSeconds, 2)
	setF(&p.ActuatorTimeoutSeconds, 2)

	s := &c.Simulator
	if s.HeadsetName == "" {
		s.HeadsetName = "Headset Sim"
	}
	if s.SampleRate == 0 {
		s.SampleRate = 10
	}
	setF(&s.ActionProbability, 0.3)

	if c.CORS.Enabled {
		if len(c.CORS.AllowedOrigins) == 0 {
			c.CORS.AllowedOrigins = []string{"*"}
		}
		if len(c.CORS.AllowedMethods) == 0 {
			c.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
		}
		if len(c.CORS.AllowedHeaders) == 0 {
			c.CORS.AllowedHeaders = []string{"Content-Type", "X-Log-Level"}
		}
	}

	e := &c.Events
	if e.SendBuffer == 0 {
		e.SendBuffer = 64
	}
	setF(&e.WriteTimeoutSeconds, 5)
	setF(&e.PingIntervalSeconds, 30)
}

func setF(p *float64, v float64) {
	if *p == 0 {
		*p = v
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.Training.Trials < 1 {
		errs = append(errs, fmt.Errorf("training.trials must be >= 1, got %d", c.Training.Trials))
	}
	durations := []struct {
		name string
		v    float64
	}{
		{"poll_interval_seconds", c.PollIntervalSeconds},
		{"shutdown_timeout_seconds", c.ShutdownTimeoutSeconds},
		{"training.preroll_seconds", c.Training.PrerollSeconds},
		{"training.rest_seconds", c.Training.RestSeconds},
		{"training.action_seconds", c.Training.ActionSeconds},
		{"training.ack_grace_seconds", c.Training.AckGraceSeconds},
		{"training.acquisition_timeout_seconds", c.Training.AcquisitionTimeoutSeconds},
		{"prediction.rest_seconds", c.Prediction.RestSeconds},
		{"prediction.action_seconds", c.Prediction.ActionSeconds},
		{"prediction.window_seconds", c.Prediction.WindowSeconds},
		{"prediction.actuator_timeout_seconds", c.Prediction.ActuatorTimeoutSeconds},
	}
	for _, d := range durations {
		if d.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", d.name))
		}
	}
	if c.Prediction.ActuatorMinIntervalSeconds < 0 {
		errs = append(errs, fmt.Errorf("prediction.actuator_min_interval_seconds must be >= 0"))
	}
	if p := c.Simulator.ActionProbability; p < 0 || p > 1 {
		errs = append(errs, fmt.Errorf("simulator.action_probability must be within [0,1], got %v", p))
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be console or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Env keys read by ApplyEnv.
const (
	EnvAddr      = "FLICKD_ADDR"
	EnvLogLevel  = "FLICKD_LOG_LEVEL"
	EnvLogFormat = "FLICKD_LOG_FORMAT"
	EnvSimulate  = "FLICKD_SIMULATE"
	EnvTrials    = "FLICKD_TRAINING_TRIALS"
)

// ApplyEnv overrides fields from FLICKD_* variables resolved through lookup,
// normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAddr); ok && v != "" {
		c.Addr = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		c.LogFormat = v
	}
	if v, ok := lookup(EnvSimulate); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSimulate, err)
		}
		c.Simulate = b
	}
	if v, ok := lookup(EnvTrials); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTrials, err)
		}
		c.Training.Trials = n
	}
	return nil
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// ToSession converts the tunables into a session.Config. Collaborators are
// left for the caller to set.
func (c Config) ToSession() session.Config {
	return session.Config{
		Trials:                c.Training.Trials,
		Preroll:               seconds(c.Training.PrerollSeconds),
		RestTrial:             seconds(c.Training.RestSeconds),
		ActionTrial:           seconds(c.Training.ActionSeconds),
		AckGrace:              seconds(c.Training.AckGraceSeconds),
		AcquisitionTimeout:    seconds(c.Training.AcquisitionTimeoutSeconds),
		PredictionRest:        seconds(c.Prediction.RestSeconds),
		PredictionAction:      seconds(c.Prediction.ActionSeconds),
		PredictionWindow:      seconds(c.Prediction.WindowSeconds),
		ActuatorTimeout:       seconds(c.Prediction.ActuatorTimeoutSeconds),
		StopOnActuatorTimeout: c.Prediction.StopOnActuatorTimeout,
		PollInterval:          seconds(c.PollIntervalSeconds),
	}
}

// ActuatorMinInterval is the throttle interval; zero disables throttling.
func (c Config) ActuatorMinInterval() time.Duration {
	return seconds(c.Prediction.ActuatorMinIntervalSeconds)
}

// ShutdownTimeout bounds graceful shutdown.
func (c Config) ShutdownTimeout() time.Duration { return seconds(c.ShutdownTimeoutSeconds) }

// ActuatorDelay is the simulated actuator's latency.
func (c Config) ActuatorDelay() time.Duration {
	return time.Duration(c.Simulator.ActuatorDelayMS) * time.Millisecond
}
