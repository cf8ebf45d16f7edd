package studio

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newAutosaveSession(t *testing.T, api *fakeAPI, debounceAfter time.Duration) *Session {
	t.Helper()
	s := NewSession(Options{
		API:              api,
		Logger:           discardLogger(),
		AutosaveDebounce: debounceAfter,
		AutosaveInterval: time.Hour,
	})
	s.Start(context.Background())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDebounceCoalescesEdits(t *testing.T) {
	api := newFakeAPI()
	s := newAutosaveSession(t, api, 50*time.Millisecond)

	for i := 0; i < 5; i++ {
		addRect(s, "r")
		time.Sleep(5 * time.Millisecond)
	}
	waitFor(t, 2*time.Second, func() bool {
		c, _ := api.calls()
		return len(c) == 1
	})
	time.Sleep(150 * time.Millisecond)

	creates, updates := api.calls()
	if len(creates) != 1 || len(updates) != 0 {
		t.Fatalf("creates=%d updates=%d, want one save", len(creates), len(updates))
	}
	if s.State().Dirty {
		t.Fatal("still dirty after autosave")
	}
}

func TestTriggerSkipsCleanDesign(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api, nil)
	if _, ok := s.autosave.Trigger(context.Background(), TriggerPeriodic); ok {
		t.Fatal("clean design dispatched a save")
	}
	if c, u := api.calls(); len(c)+len(u) != 0 {
		t.Fatal("api called")
	}
}

func TestTriggerDroppedWhileSaveInFlight(t *testing.T) {
	api := newFakeAPI()
	entered := make(chan struct{})
	release := make(chan struct{})
	api.onSave = func() {
		close(entered)
		<-release
	}
	s := newTestSession(t, api, nil)
	addRect(s, "r")

	first := make(chan SaveResult)
	go func() { first <- s.RequestSave(context.Background(), TriggerDebounce) }()
	<-entered

	if _, ok := s.autosave.Trigger(context.Background(), TriggerPeriodic); ok {
		t.Fatal("overlapping trigger dispatched a second save")
	}
	close(release)
	if res := <-first; res.Outcome != Saved {
		t.Fatalf("first save = %+v", res)
	}

	creates, updates := api.calls()
	if len(creates) != 1 || len(updates) != 0 {
		t.Fatalf("creates=%d updates=%d", len(creates), len(updates))
	}
}

func TestManualSaveWaitsForInFlightSave(t *testing.T) {
	api := newFakeAPI()
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	api.onSave = func() {
		entered <- struct{}{}
		<-release
	}
	s := newTestSession(t, api, nil)
	addRect(s, "r")

	go s.RequestSave(context.Background(), TriggerDebounce)
	<-entered

	done := make(chan SaveResult)
	go func() { done <- s.RequestSave(context.Background(), TriggerManual) }()
	select {
	case <-done:
		t.Fatal("manual save overlapped the running save")
	case <-time.After(30 * time.Millisecond):
	}
	close(release)
	if res := <-done; res.Outcome != Saved {
		t.Fatalf("manual save = %+v", res)
	}

	// the manual save sees the id created by the first one
	creates, updates := api.calls()
	if len(creates) != 1 || len(updates) != 1 || updates[0].ID != "design-1" {
		t.Fatalf("creates=%d updates=%+v", len(creates), updates)
	}
}

func TestStopDropsPendingDebounce(t *testing.T) {
	api := newFakeAPI()
	s := newAutosaveSession(t, api, 30*time.Millisecond)
	addRect(s, "r")
	s.Close()

	time.Sleep(100 * time.Millisecond)
	if c, u := api.calls(); len(c)+len(u) != 0 {
		t.Fatalf("save ran after Stop: creates=%d updates=%d", len(c), len(u))
	}
	if !s.State().Dirty {
		t.Fatal("dirty flag lost")
	}
}

func TestStopWaitsForRunningSave(t *testing.T) {
	api := newFakeAPI()
	entered := make(chan struct{})
	api.onSave = func() {
		close(entered)
		time.Sleep(50 * time.Millisecond)
	}
	s := newAutosaveSession(t, api, 10*time.Millisecond)
	addRect(s, "r")
	<-entered

	s.Close()
	if c, _ := api.calls(); len(c) != 1 {
		t.Fatalf("Stop returned before the save finished: creates=%d", len(c))
	}
}

func TestPeriodicSaveRunsOnlyWhenDirty(t *testing.T) {
	api := newFakeAPI()
	logs := &syncBuffer{}
	s := newTestSession(t, api, nil, func(o *Options) {
		o.Logger = slog.New(slog.NewTextHandler(logs, nil))
		o.AutosaveInterval = time.Second
	})
	s.Start(context.Background())

	// clean design: ticks pass without a save
	time.Sleep(1500 * time.Millisecond)
	if c, u := api.calls(); len(c)+len(u) != 0 {
		t.Fatalf("clean design saved: creates=%d updates=%d", len(c), len(u))
	}

	addRect(s, "r")
	waitFor(t, 3*time.Second, func() bool { c, _ := api.calls(); return len(c) == 1 })
	waitFor(t, time.Second, func() bool { return !s.State().Dirty })
	if !strings.Contains(logs.String(), "trigger=periodic") {
		t.Fatalf("save not made by the periodic timer:\n%s", logs.String())
	}

	time.Sleep(1500 * time.Millisecond)
	if c, u := api.calls(); len(c) != 1 || len(u) != 0 {
		t.Fatalf("saved again while clean: creates=%d updates=%d", len(c), len(u))
	}
}
