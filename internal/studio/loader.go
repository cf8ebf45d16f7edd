package studio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"design-studio/internal/canvas"
	"design-studio/internal/document"
)

// ErrLoadFailed wraps every reason a stored design could not be opened. The store is left
// at its defaults in that case.
var ErrLoadFailed = errors.New("studio: load failed")

// newPageID returns a time-ordered unique page id.
func newPageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func newDesignID() string { return uuid.NewString() }

// Load fetches design id and applies it to the store and canvas. Single-page designs are
// opened as a one-page document; they are only rewritten as an envelope once a second page
// exists. A save already running finishes first, so its result is recorded against the
// design it was taken from.
func (s *Session) Load(ctx context.Context, id string) error {
	s.saver.mu.Lock()
	defer s.saver.mu.Unlock()
	s.editMu.Lock()
	defer s.editMu.Unlock()

	s.resetLocked()
	d, err := s.api.Get(ctx, id)
	if err != nil {
		s.log.Warn("load design", "design_id", id, "error", err)
		return fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	if d.ID == "" {
		d.ID = id
	}
	if err := s.apply(d.ID, d.Name, d.Size, d.CanvasData); err != nil {
		s.log.Warn("open design", "design_id", id, "error", err)
		s.resetLocked()
		return fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	s.store.SetDirty(false)
	st := s.store.State()
	s.log.Info("design loaded", "design_id", st.DesignID, "pages", len(st.Pages), "active_page", st.ActivePageIndex)
	return nil
}

// apply installs stored canvasData into the store. Size is applied before page content.
func (s *Session) apply(id, name, size string, canvasData json.RawMessage) error {
	parsed, err := document.Parse(canvasData)
	if err != nil {
		return err
	}
	if size != "" {
		if w, h, err := document.ParseSize(size); err == nil {
			s.store.SetCanvasDimensions(w, h)
			s.canvas.SetDimensions(w, h)
		} else {
			s.log.Debug("ignoring design size", "size", size, "error", err)
		}
	}

	switch parsed.Format {
	case document.FormatMulti:
		pages := parsed.Pages
		w, h := s.store.Dimensions()
		if len(pages) == 0 {
			pages = []document.Page{{Width: w, Height: h}}
		}
		for i := range pages {
			if pages[i].ID == "" {
				pages[i].ID = newPageID()
			}
			if pages[i].Width <= 0 || pages[i].Height <= 0 {
				pages[i].Width, pages[i].Height = w, h
			}
		}
		s.store.SetPages(pages)
		s.store.SetActivePageIndex(parsed.ActivePageIndex)
		if err := s.store.showActive(); err != nil {
			return err
		}
	default:
		if err := s.canvas.LoadFromJSON(parsed.Single); err != nil {
			return fmt.Errorf("load scene: %w", err)
		}
		w, h := s.store.Dimensions()
		scene, err := s.canvas.ToJSON()
		if err != nil {
			return fmt.Errorf("serialize canvas: %w", err)
		}
		s.store.SetPages([]document.Page{{ID: newPageID(), CanvasJSON: scene, Width: w, Height: h}})
		s.store.SetActivePageIndex(0)
	}

	s.store.SetDesignID(id)
	s.store.SetName(name)
	s.store.RefreshLayers()
	return nil
}

// resetLocked puts the store and canvas back to a new blank design.
func (s *Session) resetLocked() {
	s.store.Reset()
	w, h := s.store.Dimensions()
	s.canvas.SetDimensions(w, h)
	s.canvas.ResetViewport()
	if err := s.canvas.LoadFromJSON(canvas.BlankJSON()); err != nil {
		s.log.Debug("clear canvas", "error", err)
	}
	s.store.RefreshLayers()
}
