package studio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"design-studio/internal/canvas"
	"design-studio/internal/designclient"
	"design-studio/internal/drafts"
)

// fakeAPI is an in-memory design service.
type fakeAPI struct {
	mu      sync.Mutex
	designs map[string]*designclient.Design
	creates []designclient.Payload
	updates []designclient.Payload
	getErr  error
	// saveErrs is consumed one error per create/update call.
	saveErrs []error
	// onSave runs inside create/update before the answer is produced.
	onSave func()
	// lostReplies counts upcoming creates/updates that are stored but answer with a timeout.
	lostReplies int
	// created maps the id a create offered to the id it was stored under.
	created map[string]string
	nextID  int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{designs: map[string]*designclient.Design{}, created: map[string]string{}}
}

func (f *fakeAPI) put(d designclient.Design) {
	f.mu.Lock()
	f.designs[d.ID] = &d
	f.mu.Unlock()
}

func (f *fakeAPI) Get(_ context.Context, id string) (*designclient.Design, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	d, ok := f.designs[id]
	if !ok {
		return nil, &designclient.APIError{StatusCode: 404, Message: "Design not found"}
	}
	cp := *d
	return &cp, nil
}

func (f *fakeAPI) Create(_ context.Context, p designclient.Payload) (*designclient.Design, error) {
	f.runHook()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, p)
	if err := f.popErr(); err != nil {
		return nil, err
	}
	id, seen := f.created[p.ID]
	version := 1
	if seen {
		version = f.designs[id].Version + 1
	} else {
		f.nextID++
		id = fmt.Sprintf("design-%d", f.nextID)
		if p.ID != "" {
			f.created[p.ID] = id
		}
	}
	d := designclient.Design{ID: id, Name: p.Name, Size: p.Size, CanvasData: wireString(p.CanvasData), Version: version}
	f.designs[id] = &d
	if f.lostReplies > 0 {
		f.lostReplies--
		return nil, context.DeadlineExceeded
	}
	cp := d
	return &cp, nil
}

func (f *fakeAPI) Update(_ context.Context, p designclient.Payload) (*designclient.Design, error) {
	f.runHook()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, p)
	if err := f.popErr(); err != nil {
		return nil, err
	}
	prev := f.designs[p.ID]
	version := 1
	if prev != nil {
		version = prev.Version + 1
	}
	d := designclient.Design{ID: p.ID, Name: p.Name, Size: p.Size, CanvasData: wireString(p.CanvasData), Version: version}
	f.designs[p.ID] = &d
	if f.lostReplies > 0 {
		f.lostReplies--
		return nil, context.DeadlineExceeded
	}
	cp := d
	return &cp, nil
}

func (f *fakeAPI) runHook() {
	f.mu.Lock()
	hook := f.onSave
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (f *fakeAPI) popErr() error {
	if len(f.saveErrs) == 0 {
		return nil
	}
	err := f.saveErrs[0]
	f.saveErrs = f.saveErrs[1:]
	return err
}

func (f *fakeAPI) stored() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.designs)
}

func (f *fakeAPI) calls() (creates, updates []designclient.Payload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]designclient.Payload(nil), f.creates...), append([]designclient.Payload(nil), f.updates...)
}

// memJournal is an in-memory DraftJournal.
type memJournal struct {
	mu     sync.Mutex
	drafts map[string]drafts.Draft
}

func newMemJournal() *memJournal { return &memJournal{drafts: map[string]drafts.Draft{}} }

func (m *memJournal) Put(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[key] = drafts.Draft{Key: key, Payload: append([]byte(nil), payload...), SavedAt: time.Now()}
	return nil
}

func (m *memJournal) Get(_ context.Context, key string) (drafts.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[key]
	if !ok {
		return drafts.Draft{}, drafts.ErrNotFound
	}
	return d, nil
}

func (m *memJournal) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, key)
	return nil
}

func (m *memJournal) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.drafts[key]
	return ok
}

func wireString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, api DesignAPI, journal DraftJournal, with ...func(*Options)) *Session {
	t.Helper()
	opts := Options{
		API:              api,
		Logger:           discardLogger(),
		Retry:            RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond},
		Preview:          canvas.ThumbnailOptions{MaxEdge: 64, Quality: 50},
		AutosaveDebounce: time.Hour,
		AutosaveInterval: time.Hour,
	}
	if journal != nil {
		opts.Drafts = journal
	}
	for _, fn := range with {
		fn(&opts)
	}
	s := NewSession(opts)
	s.saver.sleep = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { s.Close() })
	return s
}

// sceneWith returns a serialized scene holding one rect with the given id.
func sceneWith(id string) string {
	sc := canvas.NewScene(0, 0)
	sc.Add(canvas.Object{ID: id, Type: canvas.TypeRect, Width: 10, Height: 10, Fill: "#00ff00"})
	out, _ := sc.ToJSON()
	return out
}

func addRect(s *Session, id string) error {
	return s.Edit(func(c canvas.Canvas) error {
		c.Add(canvas.Object{ID: id, Type: canvas.TypeRect, Left: 1, Top: 1, Width: 20, Height: 20, Fill: "red"})
		return nil
	})
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

// editingCanvas runs edit on its own goroutine right after the first serialize once armed.
type editingCanvas struct {
	*canvas.Scene
	once sync.Once
	edit func()
}

func (c *editingCanvas) ToJSON() (string, error) {
	out, err := c.Scene.ToJSON()
	if c.edit != nil {
		c.once.Do(func() { go c.edit() })
	}
	return out, err
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
