package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"flickd/pkg/types"
)

type mockService struct {
	calls     []string
	startErr  error
	restarted bool
	actErr    error
	status    types.StatusResponse
	ready     bool
}

func (m *mockService) StartTraining() error   { m.calls = append(m.calls, "train.start"); return m.startErr }
func (m *mockService) StopTraining() error    { m.calls = append(m.calls, "train.stop"); return nil }
func (m *mockService) StartPredicting() error { m.calls = append(m.calls, "pred.start"); return m.startErr }
func (m *mockService) StopPredicting() error  { m.calls = append(m.calls, "pred.stop"); return nil }
func (m *mockService) RestartPrediction() bool {
	m.calls = append(m.calls, "pred.restart")
	return m.restarted
}
func (m *mockService) TriggerActuator(context.Context) error {
	m.calls = append(m.calls, "actuate")
	return m.actErr
}
func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool                  { return m.ready }

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

type mockHeadset struct{ running bool }

func (h *mockHeadset) Start() bool { was := h.running; h.running = true; return !was }
func (h *mockHeadset) Stop() bool  { was := h.running; h.running = false; return was }

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestStatusHandler(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{SourceName: "sim", StaleCallbacks: 4}}
	w := do(t, NewMux(svc, Options{}), http.MethodGet, "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	var body types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.SourceName != "sim" || body.StaleCallbacks != 4 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestControlRoutes(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{Training: types.TrainingStatus{State: "Starting"}}}
	h := NewMux(svc, Options{})
	for _, path := range []string{"/training/start", "/training/stop", "/prediction/start", "/prediction/stop", "/actuator/test"} {
		w := do(t, h, http.MethodPost, path)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status=%d body=%s", path, w.Code, w.Body.String())
		}
		var body types.OKResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: json: %v", path, err)
		}
		if !body.OK || body.Status.Training.State != "Starting" {
			t.Fatalf("%s: unexpected body %+v", path, body)
		}
	}
	want := "train.start,train.stop,pred.start,pred.stop,actuate"
	if got := strings.Join(svc.calls, ","); got != want {
		t.Fatalf("calls=%s want %s", got, want)
	}
}

func TestControlRoutes_MethodNotAllowed(t *testing.T) {
	svc := &mockService{}
	w := do(t, NewMux(svc, Options{}), http.MethodGet, "/training/start")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", w.Code)
	}
	if len(svc.calls) != 0 {
		t.Fatalf("service touched: %v", svc.calls)
	}
}

func TestRestartReportsOutcome(t *testing.T) {
	svc := &mockService{}
	h := NewMux(svc, Options{})
	var body types.OKResponse

	w := do(t, h, http.MethodPost, "/prediction/restart")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.OK {
		t.Fatalf("restart outside Acting reported ok")
	}

	svc.restarted = true
	w = do(t, h, http.MethodPost, "/prediction/restart")
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if !body.OK {
		t.Fatalf("restart from Acting not reported")
	}
}

func TestHTTPErrorMapping(t *testing.T) {
	svc := &mockService{startErr: mockHTTPError{msg: "nope", code: http.StatusTeapot}}
	w := do(t, NewMux(svc, Options{}), http.MethodPost, "/training/start")
	if w.Code != http.StatusTeapot {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestGenericErrorMaps500(t *testing.T) {
	svc := &mockService{actErr: errors.New("boom")}
	w := do(t, NewMux(svc, Options{}), http.MethodPost, "/actuator/test")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Error != "boom" || body.Code != 500 || body.Reason != "session_failed" {
		t.Fatalf("unexpected error body %+v", body)
	}
}

func TestHeadsetRoutes(t *testing.T) {
	svc := &mockService{}
	if w := do(t, NewMux(svc, Options{}), http.MethodPost, "/simulator/headset/start"); w.Code != http.StatusNotFound {
		t.Fatalf("headset route without simulator: status=%d", w.Code)
	}

	hs := &mockHeadset{}
	h := NewMux(svc, Options{Headset: hs})
	var body types.OKResponse
	w := do(t, h, http.MethodPost, "/simulator/headset/start")
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if w.Code != http.StatusOK || !body.OK || !hs.running {
		t.Fatalf("start: status=%d body=%+v", w.Code, body)
	}
	w = do(t, h, http.MethodPost, "/simulator/headset/start")
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.OK {
		t.Fatalf("second start must report false")
	}
	w = do(t, h, http.MethodPost, "/simulator/headset/stop")
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if !body.OK || hs.running {
		t.Fatalf("stop: body=%+v", body)
	}
}

func TestEventsRoute(t *testing.T) {
	called := false
	events := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})
	w := do(t, NewMux(&mockService{}, Options{Events: events}), http.MethodGet, "/events")
	if !called || w.Code != http.StatusTeapot {
		t.Fatalf("events handler not mounted: called=%v status=%d", called, w.Code)
	}
	if w := do(t, NewMux(&mockService{}, Options{}), http.MethodGet, "/events"); w.Code != http.StatusNotFound {
		t.Fatalf("events without handler: status=%d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	w := do(t, NewMux(&mockService{}, Options{}), http.MethodGet, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestReadyz(t *testing.T) {
	w := do(t, NewMux(&mockService{ready: true}, Options{}), http.MethodGet, "/readyz")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestReadyz_NotReady(t *testing.T) {
	w := do(t, NewMux(&mockService{}, Options{}), http.MethodGet, "/readyz")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "no signal") {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestCORSAndSecurityHeaders(t *testing.T) {
	SetCORSOptions(true, []string{"*"}, []string{"GET", "POST", "OPTIONS"}, []string{"Content-Type"})
	defer SetCORSOptions(false, nil, nil, nil)

	h := NewMux(&mockService{}, Options{})
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options=nosniff, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Fatalf("expected CORS header Access-Control-Allow-Origin to be set, got empty")
	}
}

func TestCORSDisabledByDefault(t *testing.T) {
	h := NewMux(&mockService{}, Options{})
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected CORS header %q", got)
	}
}
