package httpapi

import "time"

// actuatorTestTimeout bounds a POST /actuator/test request. Zero means no
// limit beyond the actuator's own timeout.
var actuatorTestTimeout time.Duration

// SetActuatorTestTimeout sets the /actuator/test timeout (<=0 disables).
func SetActuatorTestTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	actuatorTestTimeout = d
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
