package studio

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"design-studio/internal/canvas"
	"design-studio/internal/designclient"
	"design-studio/internal/document"
	"design-studio/internal/drafts"
)

func TestSaveCreatesThenUpdates(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api, nil)
	s.SetPrompt("summer sale")
	if err := addRect(s, "r1"); err != nil {
		t.Fatal(err)
	}

	res := s.RequestSave(context.Background(), TriggerManual)
	if res.Outcome != Saved || res.DesignID != "design-1" {
		t.Fatalf("first save = %+v", res)
	}
	if s.State().DesignID != "design-1" {
		t.Fatal("server id not recorded")
	}
	if s.State().Dirty {
		t.Fatal("still dirty after save")
	}

	if err := addRect(s, "r2"); err != nil {
		t.Fatal(err)
	}
	res = s.RequestSave(context.Background(), TriggerManual)
	if res.Outcome != Saved || res.Seq != 2 {
		t.Fatalf("second save = %+v", res)
	}

	creates, updates := api.calls()
	if len(creates) != 1 || len(updates) != 1 {
		t.Fatalf("creates=%d updates=%d", len(creates), len(updates))
	}
	c := creates[0]
	if c.ID == "" || c.Prompt != "summer sale" || c.Name != document.DefaultName || c.Size != "1080x1080" || c.Category != "canvas" {
		t.Errorf("create payload = %+v", c)
	}
	if !strings.HasPrefix(c.ImageURL, "data:image/jpeg;base64,") {
		t.Errorf("imageUrl = %.40q", c.ImageURL)
	}
	if updates[0].ID != "design-1" {
		t.Errorf("update id = %q", updates[0].ID)
	}
}

func TestSaveWithoutCanvasIsSkipped(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api, nil)
	s.store.SetCanvas(nil)
	s.store.MarkEdited()

	res := s.RequestSave(context.Background(), TriggerManual)
	if res.Outcome != Skipped || !errors.Is(res.Err, ErrNoCanvas) {
		t.Fatalf("res = %+v", res)
	}
	if c, u := api.calls(); len(c)+len(u) != 0 {
		t.Fatal("api called without a canvas")
	}
}

func TestSaveMultiPageEnvelope(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api, nil)
	if err := addRect(s, "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddPage(1080, 1350); err != nil {
		t.Fatal(err)
	}
	if err := addRect(s, "second"); err != nil {
		t.Fatal(err)
	}

	if res := s.RequestSave(context.Background(), TriggerManual); res.Outcome != Saved {
		t.Fatal(res)
	}
	creates, _ := api.calls()
	p := creates[0]
	if p.Size != "1080x1350" {
		t.Errorf("size = %q", p.Size)
	}

	var env struct {
		MultiPage bool `json:"_multiPage"`
		Pages     []struct {
			ID         string `json:"id"`
			CanvasJSON string `json:"canvasJSON"`
			Width      int    `json:"width"`
			Height     int    `json:"height"`
		} `json:"pages"`
		ActivePageIndex int `json:"activePageIndex"`
	}
	if err := json.Unmarshal([]byte(p.CanvasData), &env); err != nil {
		t.Fatal(err)
	}
	if !env.MultiPage || len(env.Pages) != 2 || env.ActivePageIndex != 1 {
		t.Fatalf("envelope = %+v", env)
	}
	if env.Pages[0].Height != 1080 || env.Pages[1].Height != 1350 {
		t.Errorf("page sizes = %+v", env.Pages)
	}
	if !strings.Contains(env.Pages[0].CanvasJSON, `"first"`) || !strings.Contains(env.Pages[1].CanvasJSON, `"second"`) {
		t.Errorf("page content mixed up: %+v", env.Pages)
	}
	if strings.Contains(p.CanvasData, "thumbnail") {
		t.Error("page thumbnails persisted")
	}
}

func TestSaveRetriesRetryableFailures(t *testing.T) {
	api := newFakeAPI()
	api.saveErrs = []error{
		&designclient.APIError{StatusCode: 503},
		&designclient.APIError{StatusCode: 429},
	}
	s := newTestSession(t, api, nil)
	var waits []time.Duration
	s.saver.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	addRect(s, "r")

	res := s.RequestSave(context.Background(), TriggerManual)
	if res.Outcome != Saved || res.Attempts != 3 {
		t.Fatalf("res = %+v", res)
	}
	if len(waits) != 2 || waits[0] != time.Millisecond || waits[1] != 2*time.Millisecond {
		t.Errorf("waits = %v", waits)
	}
}

func TestSaveFatalFailureKeepsDirtyAndJournals(t *testing.T) {
	api := newFakeAPI()
	api.saveErrs = []error{&designclient.APIError{StatusCode: 400, Message: "Invalid canvas data"}}
	journal := newMemJournal()
	s := newTestSession(t, api, journal)
	addRect(s, "r")

	res := s.RequestSave(context.Background(), TriggerManual)
	if res.Outcome != Fatal || res.Attempts != 1 {
		t.Fatalf("res = %+v", res)
	}
	if !s.State().Dirty {
		t.Fatal("dirty cleared on failure")
	}
	if !journal.has(drafts.NewDesignKey) {
		t.Fatal("failed payload not journaled")
	}
	if st := s.Status(); st.Phase != PhaseFailed || st.LastError == nil {
		t.Fatalf("status = %+v", st)
	}

	res = s.RequestSave(context.Background(), TriggerManual)
	if res.Outcome != Saved {
		t.Fatalf("retry = %+v", res)
	}
	if journal.has(drafts.NewDesignKey) || journal.has(res.DesignID) {
		t.Fatal("draft kept after a successful save")
	}
}

func TestSaveExhaustsRetries(t *testing.T) {
	api := newFakeAPI()
	for i := 0; i < 3; i++ {
		api.saveErrs = append(api.saveErrs, &designclient.APIError{StatusCode: 502})
	}
	s := newTestSession(t, api, nil)
	addRect(s, "r")
	res := s.RequestSave(context.Background(), TriggerManual)
	if res.Outcome != Retryable || res.Attempts != 3 {
		t.Fatalf("res = %+v", res)
	}
}

func TestEditDuringSaveKeepsDirty(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api, nil)
	addRect(s, "before")
	api.onSave = func() { s.store.MarkEdited() }

	if res := s.RequestSave(context.Background(), TriggerManual); res.Outcome != Saved {
		t.Fatal(res)
	}
	if !s.State().Dirty {
		t.Fatal("edit made during the save was marked saved")
	}
}

func TestThumbnailRestoresViewport(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api, nil)
	zoomed := canvas.Transform{2, 0, 0, 2, -50, -40}
	s.Canvas().SetViewport(zoomed)
	addRect(s, "r")

	if res := s.RequestSave(context.Background(), TriggerManual); res.Outcome != Saved {
		t.Fatal(res)
	}
	if got := s.Canvas().Viewport(); got != zoomed {
		t.Fatalf("viewport = %v, want %v", got, zoomed)
	}
}

type brokenThumbnail struct{ canvas.Canvas }

func (brokenThumbnail) Thumbnail(canvas.ThumbnailOptions) (string, error) {
	return "", errors.New("tainted")
}

func TestThumbnailFailureStillSaves(t *testing.T) {
	api := newFakeAPI()
	s := NewSession(Options{API: api, Logger: discardLogger(), Canvas: brokenThumbnail{canvas.NewScene(10, 10)}})
	t.Cleanup(func() { s.Close() })
	addRect(s, "r")

	if res := s.RequestSave(context.Background(), TriggerManual); res.Outcome != Saved {
		t.Fatal(res)
	}
	creates, _ := api.calls()
	if creates[0].ImageURL != "" {
		t.Errorf("imageUrl = %q, want empty", creates[0].ImageURL)
	}
}

func TestSaveStatusObserver(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api, nil)
	var phases []Phase
	s.OnStatus(func(st SaveStatus) { phases = append(phases, st.Phase) })
	addRect(s, "r")
	s.RequestSave(context.Background(), TriggerManual)

	if len(phases) != 2 || phases[0] != PhaseSaving || phases[1] != PhaseSaved {
		t.Fatalf("phases = %v", phases)
	}
	if s.Status().LastSavedAt.IsZero() {
		t.Error("LastSavedAt not set")
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 6, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second}
	for i, w := range want {
		if got := p.Backoff(i + 1); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestEditRightAfterSnapshotKeepsDirty(t *testing.T) {
	api := newFakeAPI()
	ec := &editingCanvas{Scene: canvas.NewScene(DefaultWidth, DefaultHeight)}
	s := newTestSession(t, api, nil, func(o *Options) { o.Canvas = ec })
	addRect(s, "r")

	before := s.Store().Generation()
	ec.edit = func() { s.Store().MarkEdited() }
	api.onSave = func() {
		waitFor(t, time.Second, func() bool { return s.Store().Generation() > before })
	}
	if res := s.RequestSave(context.Background(), TriggerManual); res.Outcome != Saved {
		t.Fatal(res)
	}
	if !s.State().Dirty {
		t.Fatal("edit made after the snapshot was marked saved")
	}
}

func TestRetriedCreateDoesNotDuplicate(t *testing.T) {
	api := newFakeAPI()
	api.lostReplies = 1
	s := newTestSession(t, api, nil)
	addRect(s, "r")

	res := s.RequestSave(context.Background(), TriggerManual)
	if res.Outcome != Saved || res.Attempts != 2 || res.DesignID != "design-1" {
		t.Fatalf("res = %+v", res)
	}
	creates, _ := api.calls()
	if len(creates) != 2 || creates[0].ID == "" || creates[0].ID != creates[1].ID {
		t.Fatalf("create ids = %q", []string{creates[0].ID, creates[len(creates)-1].ID})
	}
	if n := api.stored(); n != 1 {
		t.Fatalf("designs stored = %d, want 1", n)
	}
	if st := s.State(); st.DesignID != "design-1" || st.Dirty {
		t.Fatalf("state = %+v", st)
	}
}

func TestCreateIDSurvivesFailedSave(t *testing.T) {
	api := newFakeAPI()
	api.lostReplies = 3
	s := newTestSession(t, api, newMemJournal())
	addRect(s, "r")

	if res := s.RequestSave(context.Background(), TriggerManual); res.Outcome != Retryable {
		t.Fatalf("first save = %+v", res)
	}
	if res := s.RequestSave(context.Background(), TriggerManual); res.Outcome != Saved {
		t.Fatalf("second save = %+v", res)
	}
	creates, updates := api.calls()
	if len(creates) != 4 || len(updates) != 0 {
		t.Fatalf("creates=%d updates=%d", len(creates), len(updates))
	}
	for _, c := range creates[1:] {
		if c.ID != creates[0].ID {
			t.Fatalf("create ids differ: %q vs %q", c.ID, creates[0].ID)
		}
	}
	if n := api.stored(); n != 1 {
		t.Fatalf("designs stored = %d, want 1", n)
	}
}
