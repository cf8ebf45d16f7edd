package studio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"design-studio/internal/canvas"
	"design-studio/internal/designclient"
	"design-studio/internal/document"
	"design-studio/internal/drafts"
	applog "design-studio/internal/log"
)

// ErrUnsavedChanges is returned by ConfirmLeave while edits are not saved.
var ErrUnsavedChanges = errors.New("studio: unsaved changes")

const previewWorkers = 4

type Options struct {
	API     DesignAPI
	Drafts  DraftJournal
	Canvas  canvas.Canvas
	Logger  *slog.Logger
	Retry   RetryPolicy
	Preview canvas.ThumbnailOptions

	AutosaveDebounce time.Duration
	AutosaveInterval time.Duration
}

// Session is one editor working on one design.
type Session struct {
	api      DesignAPI
	drafts   DraftJournal
	canvas   canvas.Canvas
	store    *Store
	saver    *Saver
	autosave *Autosave
	preview  canvas.ThumbnailOptions
	log      *slog.Logger

	// editMu orders user operations: edits, page changes, loads.
	editMu sync.Mutex
}

func NewSession(opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = applog.WithComponent("studio")
	}
	c := opts.Canvas
	if c == nil {
		c = canvas.NewScene(DefaultWidth, DefaultHeight)
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy
	}
	store := NewStore(DefaultWidth, DefaultHeight)
	store.SetCanvas(c)

	s := &Session{
		api:     opts.API,
		drafts:  opts.Drafts,
		canvas:  c,
		store:   store,
		preview: opts.Preview,
		log:     log,
	}
	s.saver = newSaver(store, opts.API, opts.Drafts, opts.Retry, opts.Preview, log)
	s.autosave = newAutosave(store, s.saver, opts.AutosaveDebounce, opts.AutosaveInterval, log)
	s.resetLocked()
	return s
}

// Start arms autosave.
func (s *Session) Start(ctx context.Context) { s.autosave.Start(ctx) }

// Close stops autosave, waiting for a running save.
func (s *Session) Close() error {
	s.autosave.Stop()
	return nil
}

func (s *Session) Store() *Store { return s.store }

func (s *Session) State() State { return s.store.State() }

func (s *Session) Status() SaveStatus { return s.saver.Status() }

func (s *Session) Canvas() canvas.Canvas { return s.canvas }

// OnStatus registers the save status observer.
func (s *Session) OnStatus(fn func(SaveStatus)) { s.saver.OnStatus(fn) }

// RequestSave is the single entry point for saving. Manual saves wait for a running save;
// timer triggers are dropped when one is running.
func (s *Session) RequestSave(ctx context.Context, trigger Trigger) SaveResult {
	if trigger == TriggerManual {
		return s.saver.Save(ctx, trigger)
	}
	res, _ := s.autosave.Trigger(ctx, trigger)
	return res
}

// Edit applies fn to the live canvas and marks the design dirty when it succeeds.
func (s *Session) Edit(fn func(c canvas.Canvas) error) error {
	s.editMu.Lock()
	err := fn(s.canvas)
	s.store.RefreshLayers()
	s.editMu.Unlock()
	if err != nil {
		return err
	}
	s.store.MarkEdited()
	return nil
}

func (s *Session) SetName(name string) {
	s.store.SetName(name)
	s.store.MarkEdited()
}

func (s *Session) SetPrompt(prompt string) {
	s.store.SetPrompt(prompt)
	s.store.MarkEdited()
}

// AddPage inserts a blank page after the active one and switches to it.
func (s *Session) AddPage(width, height int) (int, error) {
	s.editMu.Lock()
	i, err := s.store.addPage(width, height)
	s.store.RefreshLayers()
	s.editMu.Unlock()
	if err != nil {
		return 0, err
	}
	s.store.MarkEdited()
	return i, nil
}

// SwitchPage keeps the current page's content and shows page i at its own dimensions.
func (s *Session) SwitchPage(i int) error {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	if err := s.store.switchPage(i); err != nil {
		return err
	}
	s.store.RefreshLayers()
	return nil
}

func (s *Session) RemovePage(i int) error {
	s.editMu.Lock()
	err := s.store.removePage(i)
	s.store.RefreshLayers()
	s.editMu.Unlock()
	if err != nil {
		return err
	}
	s.store.MarkEdited()
	return nil
}

// ResizeActivePage changes the size of the page being edited.
func (s *Session) ResizeActivePage(width, height int) error {
	s.editMu.Lock()
	err := s.store.resizeActive(width, height)
	s.editMu.Unlock()
	if err != nil {
		return err
	}
	s.store.MarkEdited()
	return nil
}

// ConfirmLeave is the navigation guard.
func (s *Session) ConfirmLeave() error {
	if s.store.IsDirty() {
		return ErrUnsavedChanges
	}
	return nil
}

// PagePreviews renders a thumbnail of every page from its stored content. The previews
// live in the store for page navigation and are never saved.
func (s *Session) PagePreviews(ctx context.Context) ([]document.Page, error) {
	s.editMu.Lock()
	err := s.store.UpdateCurrentPageSnapshot()
	s.editMu.Unlock()
	if err != nil {
		return nil, err
	}
	pages := s.store.Pages()
	thumbs := make([]string, len(pages))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(previewWorkers)
	for i, p := range pages {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			scene := canvas.NewScene(p.Width, p.Height)
			content := p.CanvasJSON
			if content == "" {
				content = canvas.BlankJSON()
			}
			if err := scene.LoadFromJSON(content); err != nil {
				return fmt.Errorf("page %d: %w", i, err)
			}
			url, err := scene.Thumbnail(s.preview)
			if err != nil {
				return fmt.Errorf("page %d: %w", i, err)
			}
			thumbs[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[string]string, len(pages))
	for i := range pages {
		byID[pages[i].ID] = thumbs[i]
		pages[i].ThumbnailDataURL = &thumbs[i]
	}
	s.store.SetPageThumbnails(byID)
	return pages, nil
}

// RecoverDraft restores the journaled payload of the current design, if any, and marks it
// dirty so the next save pushes it. A draft of a design never created keeps the id its
// create offered.
func (s *Session) RecoverDraft(ctx context.Context) (bool, error) {
	if s.drafts == nil {
		return false, nil
	}
	s.saver.mu.Lock()
	defer s.saver.mu.Unlock()

	key := draftKey(s.store.DesignID())
	d, err := s.drafts.Get(ctx, key)
	if errors.Is(err, drafts.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var p designclient.Payload
	if err := json.Unmarshal(d.Payload, &p); err != nil {
		return false, fmt.Errorf("decode draft %s: %w", key, err)
	}

	id := p.ID
	if key == drafts.NewDesignKey {
		id = ""
	}
	s.editMu.Lock()
	err = s.apply(id, p.Name, p.Size, json.RawMessage(p.CanvasData))
	if err == nil {
		s.store.SetPrompt(p.Prompt)
		if id == "" && p.ID != "" {
			s.store.setCreationID(p.ID)
		}
	}
	s.editMu.Unlock()
	if err != nil {
		return false, fmt.Errorf("apply draft %s: %w", key, err)
	}
	s.store.MarkEdited()
	s.log.Info("draft recovered", "key", key, "saved_at", d.SavedAt)
	return true, nil
}
