package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flickd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	StartTraining() error
	StopTraining() error
	StartPredicting() error
	StopPredicting() error
	RestartPrediction() bool
	TriggerActuator(ctx context.Context) error
	Status() types.StatusResponse
	Ready() bool
}

// Simulator toggles a simulated signal source.
type Simulator interface {
	Start() bool
	Stop() bool
}

// Options wires optional routes into NewMux.
type Options struct {
	// Events serves GET /events, normally a notify.Hub.
	Events http.Handler
	// Headset enables POST /simulator/headset/{start,stop}.
	Headset Simulator
}

func NewMux(svc Service, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	// The WebSocket route stays outside the compressed group.
	if opts.Events != nil {
		r.Get("/events", opts.Events.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))

		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, svc.Status())
		})

		r.Route("/training", func(r chi.Router) {
			r.Post("/start", control(svc, "training.start", svc.StartTraining))
			r.Post("/stop", control(svc, "training.stop", svc.StopTraining))
		})

		r.Route("/prediction", func(r chi.Router) {
			r.Post("/start", control(svc, "prediction.start", svc.StartPredicting))
			r.Post("/stop", control(svc, "prediction.stop", svc.StopPredicting))
			r.Post("/restart", func(w http.ResponseWriter, r *http.Request) {
				start := time.Now()
				ok := svc.RestartPrediction()
				logControl(r, "prediction.restart", http.StatusOK, start, nil)
				writeJSON(w, http.StatusOK, types.OKResponse{OK: ok, Status: svc.Status()})
			})
		})

		r.Post("/actuator/test", func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, cancel := actuatorContext(r)
			defer cancel()
			if err := svc.TriggerActuator(ctx); err != nil {
				if r.Context().Err() != nil {
					return
				}
				writeServiceError(w, r, "actuator.test", start, err)
				return
			}
			logControl(r, "actuator.test", http.StatusOK, start, nil)
			writeJSON(w, http.StatusOK, types.OKResponse{OK: true, Status: svc.Status()})
		})

		if opts.Headset != nil {
			h := opts.Headset
			r.Post("/simulator/headset/start", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, types.OKResponse{OK: h.Start(), Status: svc.Status()})
			})
			r.Post("/simulator/headset/stop", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, types.OKResponse{OK: h.Stop(), Status: svc.Status()})
			})
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("no signal"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// control adapts a start/stop operation into a handler answering with the
// status snapshot taken after the operation.
func control(svc Service, op string, fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if err := fn(); err != nil {
			writeServiceError(w, r, op, start, err)
			return
		}
		logControl(r, op, http.StatusOK, start, nil)
		writeJSON(w, http.StatusOK, types.OKResponse{OK: true, Status: svc.Status()})
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, op string, start time.Time, err error) {
	status, reason := statusFor(err)
	IncrementRejection(reason)
	logControl(r, op, status, start, err)
	writeJSONErrorReason(w, status, err.Error(), reason)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Error().Err(err).Msg("encode response")
	}
}
