package studio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"design-studio/internal/canvas"
	"design-studio/internal/designclient"
	"design-studio/internal/document"
	"design-studio/internal/drafts"
)

// DesignAPI is the design service as the editor uses it.
type DesignAPI interface {
	Get(ctx context.Context, id string) (*designclient.Design, error)
	Create(ctx context.Context, p designclient.Payload) (*designclient.Design, error)
	Update(ctx context.Context, p designclient.Payload) (*designclient.Design, error)
}

// DraftJournal keeps payloads whose save failed.
type DraftJournal interface {
	Put(ctx context.Context, key string, payload []byte) error
	Get(ctx context.Context, key string) (drafts.Draft, error)
	Delete(ctx context.Context, key string) error
}

// Trigger names what asked for a save.
type Trigger int

const (
	TriggerManual Trigger = iota
	TriggerDebounce
	TriggerPeriodic
)

func (t Trigger) String() string {
	switch t {
	case TriggerDebounce:
		return "debounce"
	case TriggerPeriodic:
		return "periodic"
	default:
		return "manual"
	}
}

// Outcome classifies a save attempt.
type Outcome int

const (
	Skipped Outcome = iota
	Saved
	Retryable
	Fatal
)

func (o Outcome) String() string {
	return [...]string{"skipped", "saved", "retryable", "fatal"}[o]
}

// SaveResult is what a save reports back to its caller.
type SaveResult struct {
	Outcome  Outcome
	Seq      uint64
	DesignID string
	Attempts int
	Err      error
}

// Phase is the user-visible save state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSaving
	PhaseSaved
	PhaseFailed
)

func (p Phase) String() string {
	return [...]string{"idle", "saving", "saved", "failed"}[p]
}

// SaveStatus is what a status indicator shows.
type SaveStatus struct {
	Phase       Phase
	LastSavedAt time.Time
	LastError   error
}

// RetryPolicy bounds retries of retryable failures with exponential backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy tries three times, waiting 500ms then 1s.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}

// Backoff returns the wait before attempt n+1 after attempt n failed.
func (p RetryPolicy) Backoff(n int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < n && d < p.MaxDelay; i++ {
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Saver snapshots the store and pushes it to the design service. Saves never overlap.
type Saver struct {
	store  *Store
	api    DesignAPI
	drafts DraftJournal
	retry  RetryPolicy
	thumb  canvas.ThumbnailOptions
	log    *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error

	mu  sync.Mutex
	seq uint64

	statusMu sync.Mutex
	status   SaveStatus
	onStatus func(SaveStatus)
}

func newSaver(store *Store, api DesignAPI, journal DraftJournal, retry RetryPolicy, thumb canvas.ThumbnailOptions, log *slog.Logger) *Saver {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Saver{
		store:  store,
		api:    api,
		drafts: journal,
		retry:  retry,
		thumb:  thumb,
		log:    log,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Save waits for any running save and then saves.
func (s *Saver) Save(ctx context.Context, trigger Trigger) SaveResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, trigger)
}

// TrySave saves only when no other save is running. ok is false when the call was dropped.
func (s *Saver) TrySave(ctx context.Context, trigger Trigger) (res SaveResult, ok bool) {
	if !s.mu.TryLock() {
		return SaveResult{Outcome: Skipped}, false
	}
	defer s.mu.Unlock()
	return s.saveLocked(ctx, trigger), true
}

func (s *Saver) saveLocked(ctx context.Context, trigger Trigger) SaveResult {
	c := s.store.Canvas()
	if c == nil {
		return SaveResult{Outcome: Skipped, Err: ErrNoCanvas}
	}
	s.seq++
	seq := s.seq
	log := s.log.With("save_seq", seq, "trigger", trigger.String())

	st, err := s.store.snapshot()
	if err != nil {
		log.Error("snapshot page", "error", err)
		s.setStatus(PhaseFailed, err)
		return SaveResult{Outcome: Fatal, Seq: seq, Err: err}
	}

	payload, err := s.buildPayload(c, st)
	if err != nil {
		log.Error("build payload", "error", err)
		s.setStatus(PhaseFailed, err)
		return SaveResult{Outcome: Fatal, Seq: seq, Err: err}
	}
	create := st.DesignID == ""
	if create {
		payload.ID = s.store.creationID()
	}

	s.setStatus(PhaseSaving, nil)
	saved, attempts, err := s.push(ctx, payload, create, log)
	if err != nil {
		outcome := Fatal
		if designclient.IsRetryable(err) {
			outcome = Retryable
		}
		log.Warn("save failed", "design_id", st.DesignID, "attempts", attempts, "outcome", outcome.String(), "error", err)
		s.journal(ctx, draftKey(st.DesignID), payload, log)
		s.setStatus(PhaseFailed, err)
		return SaveResult{Outcome: outcome, Seq: seq, DesignID: st.DesignID, Attempts: attempts, Err: err}
	}

	id := st.DesignID
	if create {
		id = payload.ID
		if saved != nil && saved.ID != "" {
			id = saved.ID
		}
		s.store.SetDesignID(id)
	}
	if !s.store.ClearDirtyIf(st.Generation) {
		log.Debug("edited during save, staying dirty", "design_id", id)
	}
	s.forget(ctx, st.DesignID, id, log)
	s.setStatus(PhaseSaved, nil)
	log.Info("design saved", "design_id", id, "pages", len(st.Pages), "attempts", attempts)
	return SaveResult{Outcome: Saved, Seq: seq, DesignID: id, Attempts: attempts}
}

func (s *Saver) buildPayload(c canvas.Canvas, st State) (designclient.Payload, error) {
	var canvasData string
	if len(st.Pages) > 1 {
		env, err := document.EncodeMulti(st.Pages, st.ActivePageIndex)
		if err != nil {
			return designclient.Payload{}, err
		}
		canvasData = env
	} else {
		canvasData = document.EncodeSingle(st.Pages[0].CanvasJSON)
	}
	return designclient.Payload{
		ID:         st.DesignID,
		Prompt:     st.Prompt,
		Name:       st.Name,
		Category:   document.Category,
		Size:       document.FormatSize(st.Width, st.Height),
		CanvasData: canvasData,
		ImageURL:   s.thumbnail(c),
	}, nil
}

// thumbnail captures the canvas at identity zoom and puts the user's viewport back.
// Failures only cost the preview.
func (s *Saver) thumbnail(c canvas.Canvas) string {
	vp := c.Viewport()
	c.ResetViewport()
	defer c.SetViewport(vp)
	url, err := c.Thumbnail(s.thumb)
	if err != nil {
		s.log.Debug("thumbnail skipped", "error", err)
		return ""
	}
	return url
}

// push sends p, retrying retryable failures. A create carries the client-chosen id, so
// retrying one whose answer was lost does not make a second design.
func (s *Saver) push(ctx context.Context, p designclient.Payload, create bool, log *slog.Logger) (*designclient.Design, int, error) {
	var lastErr error
	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		var (
			d   *designclient.Design
			err error
		)
		if create {
			d, err = s.api.Create(ctx, p)
		} else {
			d, err = s.api.Update(ctx, p)
		}
		if err == nil {
			return d, attempt, nil
		}
		lastErr = err
		if !designclient.IsRetryable(err) || attempt == s.retry.MaxAttempts {
			return nil, attempt, err
		}
		wait := s.retry.Backoff(attempt)
		log.Debug("retrying save", "attempt", attempt, "wait", wait, "error", err)
		if err := s.sleep(ctx, wait); err != nil {
			return nil, attempt, errors.Join(lastErr, err)
		}
	}
	return nil, s.retry.MaxAttempts, lastErr
}

func draftKey(id string) string {
	if id == "" {
		return drafts.NewDesignKey
	}
	return id
}

func (s *Saver) journal(ctx context.Context, key string, p designclient.Payload, log *slog.Logger) {
	if s.drafts == nil {
		return
	}
	b, err := json.Marshal(p)
	if err != nil {
		log.Error("encode draft", "error", err)
		return
	}
	if err := s.drafts.Put(context.WithoutCancel(ctx), key, b); err != nil {
		log.Error("journal draft", "error", err)
	}
}

func (s *Saver) forget(ctx context.Context, before, after string, log *slog.Logger) {
	if s.drafts == nil {
		return
	}
	keys := []string{draftKey(after)}
	if before != after {
		keys = append(keys, draftKey(before))
	}
	for _, k := range keys {
		if err := s.drafts.Delete(context.WithoutCancel(ctx), k); err != nil && !errors.Is(err, drafts.ErrNotFound) {
			log.Warn("drop draft", "key", k, "error", err)
		}
	}
}

// OnStatus registers the status observer. It is called on every phase change.
func (s *Saver) OnStatus(fn func(SaveStatus)) {
	s.statusMu.Lock()
	s.onStatus = fn
	s.statusMu.Unlock()
}

func (s *Saver) Status() SaveStatus {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

func (s *Saver) setStatus(phase Phase, err error) {
	s.statusMu.Lock()
	s.status.Phase = phase
	switch phase {
	case PhaseSaved:
		s.status.LastSavedAt = time.Now()
		s.status.LastError = nil
	case PhaseFailed:
		s.status.LastError = err
	}
	st, fn := s.status, s.onStatus
	s.statusMu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (r SaveResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s after %d attempt(s): %v", r.Outcome, r.Attempts, r.Err)
	}
	return r.Outcome.String()
}
