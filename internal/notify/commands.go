package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"flickd/internal/session"
	"flickd/pkg/types"
)

// Command ids accepted from clients.
const (
	CommandTrainingButton      = "set-training-btn-state"
	CommandPredictionState     = "set-prediction-state"
	CommandRequestAvailability = "req:eeg-stream-availability"
	CommandActuatorTest        = "run-fes-test"
)

var errUnknownCommand = errors.New("unknown command")

// Controller is the subset of the orchestrator reachable from clients.
type Controller interface {
	StartTraining() error
	StopTraining() error
	StartPredicting() error
	StopPredicting() error
	PollAvailability() bool
	TriggerActuator(ctx context.Context) error
}

// Router dispatches client commands to a Controller. Failures are answered
// with a command-failed event to the sender.
type Router struct {
	ctrl Controller
	log  zerolog.Logger
}

func NewRouter(ctrl Controller, logger *zerolog.Logger) *Router {
	r := &Router{ctrl: ctrl, log: zerolog.Nop()}
	if logger != nil {
		r.log = logger.With().Str("component", "commands").Logger()
	}
	return r
}

// Handle implements CommandHandler.
func (r *Router) Handle(ctx context.Context, cmd types.Command) *types.Event {
	var err error
	switch cmd.ID {
	case CommandTrainingButton:
		err = r.toggle(cmd, r.ctrl.StartTraining, r.ctrl.StopTraining)
	case CommandPredictionState:
		err = r.toggle(cmd, r.ctrl.StartPredicting, r.ctrl.StopPredicting)
	case CommandRequestAvailability:
		ev := AvailabilityEvent(r.ctrl.PollAvailability())
		return &ev
	case CommandActuatorTest:
		r.log.Info().Msg("running actuator test")
		err = r.ctrl.TriggerActuator(ctx)
	default:
		err = fmt.Errorf("%w: %q", errUnknownCommand, cmd.ID)
	}
	if err == nil {
		return nil
	}
	r.log.Warn().Err(err).Str("command", cmd.ID).Msg("command failed")
	data := types.CommandFailedData{Command: cmd.ID, Error: err.Error()}
	if !errors.Is(err, errUnknownCommand) && !errors.Is(err, errBadArgument) {
		data.Reason = session.ErrorCode(err)
	}
	return &types.Event{ID: EventCommandFailed, Data: data}
}

var errBadArgument = errors.New(`expected "start" or "stop"`)

func (r *Router) toggle(cmd types.Command, start, stop func() error) error {
	v, _ := cmd.Data.(string)
	switch v {
	case "start":
		return start()
	case "stop":
		return stop()
	default:
		return fmt.Errorf("%s: %w", cmd.ID, errBadArgument)
	}
}
