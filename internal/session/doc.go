// Package session coordinates calibration (training) and monitoring
// (prediction) sessions against an external classifier engine. It is
// structured into small files by concern:
//
//   - orchestrator.go: Orchestrator, the process-scoped facade owning both
//     sessions and the store; control operations and classifier callbacks.
//   - config.go: Config and package defaults; New applies defaults.
//   - types.go: session states, labels and the status values published to
//     the store.
//   - contracts.go: collaborator interfaces (Classifier, SignalSource,
//     Actuator, Sink).
//   - errors.go: error types and helpers (IsConfiguration,
//     IsCollaboratorTimeout, ErrorCode).
//   - training.go: the training state machine.
//   - prediction.go: the prediction state machine.
//   - actuator.go: actuation and the rate limited actuator wrapper.
//   - poller.go: signal source availability polling.
//   - status_report.go: Status snapshot for the transport layer.
//   - metrics.go: Prometheus collectors.
//
// Each session run executes on one goroutine inside a sched.Scope. Stop
// cancels the scope; the run notices at its next suspension point, and every
// classifier callback re-checks the session state and run generation before
// acting, so late callbacks from a cancelled run are dropped.
//
// The store only carries status for observers. Control operations must not be
// invoked synchronously from a store listener: status publishes happen while
// the session holds its publish lock.
package session
