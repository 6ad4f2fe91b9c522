package session

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestNextTrainingStep_Table(t *testing.T) {
	cases := []struct {
		name   string
		state  TrainingState
		trials int
		want   trainingStep
	}{
		{"start from stopped", TrainingStopped, 0, trainingStep{TrainingStarting, 0, effectAcquire, TrainingStarting}},
		{"restart after complete", TrainingComplete, 3, trainingStep{TrainingStarting, 0, effectAcquire, TrainingStarting}},
		{"preroll done", TrainingStarting, 0, trainingStep{TrainingResting, 0, effectNone, TrainingResting}},
		{"rest below target", TrainingResting, 1, trainingStep{TrainingResting, 2, effectMarkRest, TrainingActing}},
		{"rest at target", TrainingResting, 3, trainingStep{TrainingComplete, 3, effectFinish, TrainingComplete}},
		{"acting", TrainingActing, 2, trainingStep{TrainingActing, 2, effectMarkAction, TrainingResting}},
	}
	for _, tc := range cases {
		if got := nextTrainingStep(tc.state, tc.trials, 3); got != tc.want {
			t.Fatalf("%s: got %+v want %+v", tc.name, got, tc.want)
		}
	}
}

func TestNextTrainingStep_UnknownStatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for unknown state")
		}
	}()
	nextTrainingStep(TrainingState(42), 0, 1)
}

type stateTrials struct {
	State  TrainingState
	Trials int
}

func compact(sts []TrainingStatus) []stateTrials {
	out := make([]stateTrials, 0, len(sts))
	for _, s := range sts {
		out = append(out, stateTrials{s.State, s.Trials})
	}
	return out
}

func lastTraining(h *harness) TrainingStatus {
	tr, _ := h.o.Snapshot()
	return tr
}

func TestTraining_ThreeTrialsAreMonotonic(t *testing.T) {
	cfg := fastConfig()
	cfg.Trials = 3
	h := newHarness(t, cfg, &fakeClassifier{autoAck: true})

	if err := h.o.StartTraining(); err != nil {
		t.Fatalf("StartTraining: %v", err)
	}
	waitFor(t, "retrain", func() bool {
		calls := h.c.Calls()
		return len(calls) > 0 && calls[len(calls)-1] == "retrain"
	})
	if err := h.o.StopTraining(); err != nil {
		t.Fatalf("StopTraining: %v", err)
	}

	want := []stateTrials{
		{TrainingStarting, 0},
		{TrainingResting, 0},
		{TrainingResting, 1}, {TrainingActing, 1},
		{TrainingResting, 2}, {TrainingActing, 2},
		{TrainingResting, 3}, {TrainingActing, 3},
		{TrainingComplete, 3},
		{TrainingStopped, 3},
	}
	got := compact(h.rec.training())
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("status sequence:\n got  %+v\n want %+v", got, want)
	}
	wantCalls := []string{
		"connect", "begin",
		"mark:rest", "mark:action",
		"mark:rest", "mark:action",
		"mark:rest", "mark:action",
		"end", "retrain", "disconnect",
	}
	if calls := h.c.Calls(); !reflect.DeepEqual(calls, wantCalls) {
		t.Fatalf("classifier calls:\n got  %v\n want %v", calls, wantCalls)
	}
	final := lastTraining(h)
	if final.ErrorCode != "" {
		t.Fatalf("manual stop must not carry an error code, got %q", final.ErrorCode)
	}
}

func TestTraining_EndToEndTiming(t *testing.T) {
	cfg := fastConfig()
	cfg.Trials = 2
	cfg.Preroll = 10 * time.Millisecond
	cfg.RestTrial = 20 * time.Millisecond
	cfg.ActionTrial = 20 * time.Millisecond
	h := newHarness(t, cfg, &fakeClassifier{autoAck: true})

	start := time.Now()
	if err := h.o.StartTraining(); err != nil {
		t.Fatalf("StartTraining: %v", err)
	}
	waitFor(t, "training complete", func() bool { return lastTraining(h).State == TrainingComplete })
	elapsed := time.Since(start)

	minimum := cfg.Preroll + 2*(cfg.RestTrial+cfg.ActionTrial)
	if elapsed < minimum {
		t.Fatalf("completed after %s, expected at least %s", elapsed, minimum)
	}
	if elapsed > minimum+time.Second {
		t.Fatalf("completed after %s, far beyond %s", elapsed, minimum)
	}
	sts := h.rec.training()
	if sts[len(sts)-1].State != TrainingComplete || sts[len(sts)-1].Trials != 2 {
		t.Fatalf("unexpected final status %+v", sts[len(sts)-1])
	}
	completes := 0
	for _, s := range sts {
		if s.State == TrainingComplete {
			completes++
		}
	}
	if completes != 1 {
		t.Fatalf("expected exactly one Complete, got %d", completes)
	}
}

func TestTraining_SourceUnavailableFailsFast(t *testing.T) {
	h := newHarness(t, fastConfig(), &fakeClassifier{autoAck: true})
	h.src.available.Store(false)

	err := h.o.StartTraining()
	if !IsConfiguration(err) || ErrorCode(err) != CodeSourceUnavailable {
		t.Fatalf("expected source_unavailable configuration error, got %v", err)
	}
	st := lastTraining(h)
	if st.State != TrainingStopped || st.ErrorCode != CodeSourceUnavailable {
		t.Fatalf("unexpected status %+v", st)
	}
	sts := h.rec.training()
	if len(sts) != 1 || sts[0].State != TrainingStopped || sts[0].ErrorCode != CodeSourceUnavailable {
		t.Fatalf("expected a single failure Stopped publish, got %+v", sts)
	}
	if calls := h.c.Calls(); len(calls) != 0 {
		t.Fatalf("classifier must not be touched, got %v", calls)
	}
}

func TestTraining_AcquisitionTimeoutStopsSession(t *testing.T) {
	cfg := fastConfig()
	cfg.AcquisitionTimeout = 20 * time.Millisecond
	h := newHarness(t, cfg, &fakeClassifier{blockConn: true})

	if err := h.o.StartTraining(); err != nil {
		t.Fatalf("StartTraining: %v", err)
	}
	waitFor(t, "failure stop", func() bool { return lastTraining(h).State == TrainingStopped })
	st := lastTraining(h)
	if st.ErrorCode != CodeAcquisitionTimeout {
		t.Fatalf("error code=%q", st.ErrorCode)
	}
	// a retry is allowed once the operator has fixed the source
	h.c.mu.Lock()
	h.c.blockConn = false
	h.c.autoAck = true
	h.c.mu.Unlock()
	if err := h.o.StartTraining(); err != nil {
		t.Fatalf("retry StartTraining: %v", err)
	}
	waitFor(t, "retry complete", func() bool { return lastTraining(h).State == TrainingComplete })
}

func TestTraining_MissingAckTimesOut(t *testing.T) {
	cfg := fastConfig()
	cfg.AckGrace = 10 * time.Millisecond
	h := newHarness(t, cfg, &fakeClassifier{})

	if err := h.o.StartTraining(); err != nil {
		t.Fatalf("StartTraining: %v", err)
	}
	waitFor(t, "failure stop", func() bool {
		st := lastTraining(h)
		return st.State == TrainingStopped && st.ErrorCode != ""
	})
	if st := lastTraining(h); st.ErrorCode != CodeTrialAckTimeout || st.Trials != 1 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestTraining_StopDropsLateAck(t *testing.T) {
	cfg := fastConfig()
	cfg.AckGrace = time.Minute
	h := newHarness(t, cfg, &fakeClassifier{})

	if err := h.o.StartTraining(); err != nil {
		t.Fatalf("StartTraining: %v", err)
	}
	waitFor(t, "first rest trial", func() bool {
		st := lastTraining(h)
		return st.State == TrainingResting && st.Trials == 1
	})
	// the mark happens right after the publish
	waitFor(t, "rest mark", func() bool {
		calls := h.c.Calls()
		return len(calls) > 0 && calls[len(calls)-1] == "mark:rest"
	})
	if err := h.o.StopTraining(); err != nil {
		t.Fatalf("StopTraining: %v", err)
	}
	h.o.OnTrialAcknowledged(LabelRest)

	if h.o.StaleCallbacks() != 1 {
		t.Fatalf("stale=%d", h.o.StaleCallbacks())
	}
	time.Sleep(30 * time.Millisecond)
	st := lastTraining(h)
	if st.State != TrainingStopped || st.ErrorCode != "" {
		t.Fatalf("late ack resurrected the session: %+v", st)
	}
	for _, c := range h.c.Calls() {
		if c == "mark:action" {
			t.Fatalf("no trial may be marked after stop, calls=%v", h.c.Calls())
		}
	}
}

func TestTraining_WrongLabelAckIsStale(t *testing.T) {
	cfg := fastConfig()
	cfg.AckGrace = time.Minute
	h := newHarness(t, cfg, &fakeClassifier{})

	if err := h.o.StartTraining(); err != nil {
		t.Fatalf("StartTraining: %v", err)
	}
	waitFor(t, "rest mark", func() bool {
		calls := h.c.Calls()
		return len(calls) > 0 && calls[len(calls)-1] == "mark:rest"
	})
	h.o.OnTrialAcknowledged(LabelAction)
	if h.o.StaleCallbacks() != 1 {
		t.Fatalf("stale=%d", h.o.StaleCallbacks())
	}
	time.Sleep(2 * cfg.RestTrial)
	h.o.OnTrialAcknowledged(LabelRest)
	waitFor(t, "acting", func() bool { return lastTraining(h).State == TrainingActing })
}

func TestTraining_AckBeforeTrialEndsIsStale(t *testing.T) {
	cfg := fastConfig()
	cfg.RestTrial = 150 * time.Millisecond
	cfg.AckGrace = time.Minute
	h := newHarness(t, cfg, &fakeClassifier{})

	if err := h.o.StartTraining(); err != nil {
		t.Fatalf("StartTraining: %v", err)
	}
	waitFor(t, "rest mark", func() bool {
		calls := h.c.Calls()
		return len(calls) > 0 && calls[len(calls)-1] == "mark:rest"
	})
	// what a cancelled run's pending rest ack looks like to the new run
	h.o.OnTrialAcknowledged(LabelRest)
	if h.o.StaleCallbacks() != 1 {
		t.Fatalf("early ack not counted stale: stale=%d", h.o.StaleCallbacks())
	}
	if st := lastTraining(h); st.State != TrainingResting || st.Trials != 1 {
		t.Fatalf("early ack advanced the run: %+v", st)
	}
	time.Sleep(cfg.RestTrial)
	h.o.OnTrialAcknowledged(LabelRest)
	waitFor(t, "acting", func() bool { return lastTraining(h).State == TrainingActing })
}

func TestTraining_StartAfterCompleteHaltsPreviousRun(t *testing.T) {
	h := newHarness(t, fastConfig(), &fakeClassifier{autoAck: true})

	if err := h.o.StartTraining(); err != nil {
		t.Fatalf("StartTraining: %v", err)
	}
	waitFor(t, "first complete", func() bool {
		calls := h.c.Calls()
		return len(calls) > 0 && calls[len(calls)-1] == "retrain"
	})
	h.o.training.mu.Lock()
	first := h.o.training.scope.Context()
	firstRun := h.o.training.runID
	h.o.training.mu.Unlock()

	if err := h.o.StartTraining(); err != nil {
		t.Fatalf("second StartTraining: %v", err)
	}
	if first.Err() == nil {
		t.Fatalf("completed run's scope still live after restart")
	}
	want := "connect,begin,mark:rest,mark:action,mark:rest,mark:action,end,retrain," +
		"disconnect,connect,begin,mark:rest,mark:action,mark:rest,mark:action,end,retrain"
	waitFor(t, "second complete", func() bool {
		return strings.Join(h.c.Calls(), ",") == want
	})
	if st := lastTraining(h); st.State != TrainingComplete || st.RunID == firstRun {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestTraining_StartWhileRunningIsNoop(t *testing.T) {
	cfg := fastConfig()
	cfg.AckGrace = time.Minute
	h := newHarness(t, cfg, &fakeClassifier{})

	if err := h.o.StartTraining(); err != nil {
		t.Fatalf("StartTraining: %v", err)
	}
	first := lastTraining(h).RunID
	if err := h.o.StartTraining(); err != nil {
		t.Fatalf("second StartTraining: %v", err)
	}
	if lastTraining(h).RunID != first {
		t.Fatalf("second start must not begin a new run")
	}
	_ = h.o.StopTraining()
	n := len(h.rec.training())
	_ = h.o.StopTraining()
	if len(h.rec.training()) != n {
		t.Fatalf("repeated stop must not publish")
	}
}
