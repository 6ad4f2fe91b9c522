package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flickd/internal/session"
	"flickd/internal/store"
	"flickd/pkg/types"
)

func TestTranslate(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	cases := []struct {
		key   string
		value any
		id    string
		data  any
	}{
		{
			session.KeyTrainingStatus,
			session.TrainingStatus{State: session.TrainingActing, Trials: 3, Target: 10},
			EventTrainingStatus,
			types.TrainingStatus{State: "Acting", Trials: 3, Target: 10},
		},
		{
			session.KeyTrainingStatus,
			session.TrainingStatus{State: session.TrainingStopped, Trials: 1, Target: 10, ErrorCode: session.CodeTrialAckTimeout},
			EventTrainingStatus,
			types.TrainingStatus{State: "Stopped", Trials: 1, Target: 10, Error: "trial_ack_timeout"},
		},
		{
			session.KeyPredictionStatus,
			session.PredictionStatus{State: session.PredictionResting, Detections: 2},
			EventPredictionStatus,
			types.PredictionStatus{State: "Resting", Detections: 2},
		},
		{session.KeySourceAvailable, true, EventSourceAvailability, types.AvailabilityData{Value: true}},
		{
			session.KeyActionDetected,
			session.ActionDetected{Label: session.LabelAction, Probabilities: []float64{0.2, 0.8}, At: at},
			EventActionDetected,
			types.ActionDetectedData{Label: "action", Probabilities: []float64{0.2, 0.8}, At: 1700000000123},
		},
		{
			session.KeyActuatorFault,
			session.ActuatorFault{Code: session.CodeActuatorFailed, Error: "unplugged"},
			EventActuatorFault,
			types.ActuatorFaultData{Error: "unplugged", Code: "actuator_failed"},
		},
	}
	for _, tc := range cases {
		ev, ok := Translate(tc.key, tc.value)
		require.True(t, ok, tc.key)
		assert.Equal(t, tc.id, ev.ID)
		assert.Equal(t, tc.data, ev.Data)
	}

	_, ok := Translate("unrelated", 1)
	assert.False(t, ok)
	_, ok = Translate(session.KeySourceAvailable, "yes")
	assert.False(t, ok, "wrong value type must not translate")
}

func TestTranslate_WireShape(t *testing.T) {
	ev, ok := Translate(session.KeySourceAvailable, false)
	require.True(t, ok)
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"eeg-stream-availability-updated","data":{"value":false}}`, string(b))
}

type broadcastRecorder struct {
	mu     sync.Mutex
	events []types.Event
}

func (b *broadcastRecorder) Broadcast(ev types.Event) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

func (b *broadcastRecorder) ids() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.ID)
	}
	return out
}

func TestBridge_ChangesAndNotifications(t *testing.T) {
	s := store.New(session.DefaultValues())
	rec := &broadcastRecorder{}
	detach := Bridge(s, rec)

	s.Set(session.KeySourceAvailable, true)
	s.Set(session.KeySourceAvailable, true) // unchanged, not forwarded
	s.Set(session.KeyTrainingStatus, session.TrainingStatus{State: session.TrainingStarting, Target: 2})
	s.Publish(session.KeyActionDetected, session.ActionDetected{Label: session.LabelAction})
	s.Publish(session.KeyActionDetected, session.ActionDetected{Label: session.LabelAction})
	s.Publish(session.KeyActuatorFault, session.ActuatorFault{Code: "x"})

	assert.Equal(t, []string{
		EventSourceAvailability,
		EventTrainingStatus,
		EventActionDetected,
		EventActionDetected,
		EventActuatorFault,
	}, rec.ids())

	detach()
	detach()
	s.Set(session.KeySourceAvailable, false)
	assert.Len(t, rec.ids(), 5, "detached bridge must not forward")
}

type fakeController struct {
	mu        sync.Mutex
	calls     []string
	startErr  error
	available bool
}

func (f *fakeController) rec(c string) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *fakeController) StartTraining() error   { f.rec("start-training"); return f.startErr }
func (f *fakeController) StopTraining() error    { f.rec("stop-training"); return nil }
func (f *fakeController) StartPredicting() error { f.rec("start-predicting"); return f.startErr }
func (f *fakeController) StopPredicting() error  { f.rec("stop-predicting"); return nil }
func (f *fakeController) PollAvailability() bool { f.rec("poll"); return f.available }
func (f *fakeController) TriggerActuator(context.Context) error {
	f.rec("actuate")
	return nil
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestRouter_Dispatch(t *testing.T) {
	ctrl := &fakeController{available: true}
	r := NewRouter(ctrl, nil)
	ctx := context.Background()

	assert.Nil(t, r.Handle(ctx, types.Command{ID: CommandTrainingButton, Data: "start"}))
	assert.Nil(t, r.Handle(ctx, types.Command{ID: CommandTrainingButton, Data: "stop"}))
	assert.Nil(t, r.Handle(ctx, types.Command{ID: CommandPredictionState, Data: "start"}))
	assert.Nil(t, r.Handle(ctx, types.Command{ID: CommandPredictionState, Data: "stop"}))
	assert.Nil(t, r.Handle(ctx, types.Command{ID: CommandActuatorTest}))

	reply := r.Handle(ctx, types.Command{ID: CommandRequestAvailability})
	require.NotNil(t, reply)
	assert.Equal(t, AvailabilityEvent(true), *reply)

	assert.Equal(t, []string{
		"start-training", "stop-training",
		"start-predicting", "stop-predicting",
		"actuate", "poll",
	}, ctrl.Calls())
}

func TestRouter_Failures(t *testing.T) {
	ctrl := &fakeController{startErr: errors.New("boom")}
	r := NewRouter(ctrl, nil)
	ctx := context.Background()

	reply := r.Handle(ctx, types.Command{ID: "nope"})
	require.NotNil(t, reply)
	assert.Equal(t, EventCommandFailed, reply.ID)
	assert.Empty(t, reply.Data.(types.CommandFailedData).Reason)

	reply = r.Handle(ctx, types.Command{ID: CommandTrainingButton, Data: "sideways"})
	require.NotNil(t, reply)
	assert.Contains(t, reply.Data.(types.CommandFailedData).Error, CommandTrainingButton)
	assert.Empty(t, ctrl.Calls(), "bad argument must not reach the controller")

	reply = r.Handle(ctx, types.Command{ID: CommandPredictionState, Data: "start"})
	require.NotNil(t, reply)
	data := reply.Data.(types.CommandFailedData)
	assert.Equal(t, CommandPredictionState, data.Command)
	assert.Equal(t, "boom", data.Error)
	assert.Equal(t, session.CodeSessionFailed, data.Reason)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m map[string]any
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestHub_BroadcastAndCommands(t *testing.T) {
	ctrl := &fakeController{available: true}
	hub := NewHub(HubConfig{Commands: NewRouter(ctrl, nil)})
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	a, b := dial(t, srv), dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, time.Millisecond)

	hub.Broadcast(types.Event{ID: EventTrainingStatus, Data: types.TrainingStatus{State: "Resting", Trials: 1, Target: 2}})
	for _, c := range []*websocket.Conn{a, b} {
		m := readEvent(t, c)
		assert.Equal(t, EventTrainingStatus, m["id"])
		assert.Equal(t, "Resting", m["data"].(map[string]any)["state"])
	}

	require.NoError(t, a.WriteJSON(types.Command{ID: CommandRequestAvailability}))
	m := readEvent(t, a)
	assert.Equal(t, EventSourceAvailability, m["id"])
	assert.Equal(t, true, m["data"].(map[string]any)["value"])

	require.NoError(t, b.WriteJSON(types.Command{ID: CommandTrainingButton, Data: "start"}))
	require.Eventually(t, func() bool {
		calls := ctrl.Calls()
		return len(calls) == 2 && calls[1] == "start-training"
	}, 2*time.Second, time.Millisecond)
}

func TestHub_DisconnectAndClose(t *testing.T) {
	hub := NewHub(HubConfig{})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, time.Millisecond)

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, time.Millisecond)

	hub.Close()
	assert.Zero(t, hub.Clients())
	require.NoError(t, b.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := b.ReadMessage()
	assert.Error(t, err, "client must be disconnected on close")

	// late connections are refused
	c := dial(t, srv)
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = c.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
