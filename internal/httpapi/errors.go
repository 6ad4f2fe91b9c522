package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"flickd/internal/session"
	"flickd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSONErrorReason(w, status, msg, "")
}

func writeJSONErrorReason(w http.ResponseWriter, status int, msg, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status, Reason: reason})
}

// statusFor maps a service error to an HTTP status and a machine readable
// reason.
func statusFor(err error) (int, string) {
	switch {
	case session.IsConflict(err):
		return http.StatusConflict, session.ErrorCode(err)
	case session.IsConfiguration(err):
		return http.StatusServiceUnavailable, session.ErrorCode(err)
	case session.IsCollaboratorTimeout(err):
		return http.StatusGatewayTimeout, session.ErrorCode(err)
	}
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode(), ""
	}
	return http.StatusInternalServerError, session.ErrorCode(err)
}
