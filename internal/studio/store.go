// Package studio holds the editing side of a design: the canvas store, the loader that reads
// (and migrates) stored designs, the save orchestrator and the autosave scheduler.
package studio

import (
	"errors"
	"fmt"
	"sync"

	"design-studio/internal/canvas"
	"design-studio/internal/document"
)

const (
	DefaultWidth  = 1080
	DefaultHeight = 1080
)

var (
	ErrNoCanvas      = errors.New("studio: no canvas attached")
	ErrPageIndex     = errors.New("studio: page index out of range")
	ErrLastPage      = errors.New("studio: a design keeps at least one page")
	ErrInvalidLayout = errors.New("studio: invalid page dimensions")
)

// Layer is the panel-facing view of one canvas object, topmost first.
type Layer struct {
	ID      string
	Name    string
	Type    canvas.ObjectType
	Visible bool
}

// State is a point-in-time copy of the store.
type State struct {
	DesignID        string
	Name            string
	Prompt          string
	Width           int
	Height          int
	Dirty           bool
	Generation      uint64
	Pages           []document.Page
	ActivePageIndex int
	Layers          []Layer
	HasCanvas       bool
}

// Store is the single owner of a design's editing state. All methods are safe for
// concurrent use; observers run outside the lock.
type Store struct {
	mu       sync.RWMutex
	designID string
	// createID is the id offered to the service while the design has not been created.
	createID string
	name     string
	prompt   string
	width    int
	height   int
	dirty    bool
	gen      uint64
	canvas   canvas.Canvas
	pages    []document.Page
	active   int
	layers   []Layer

	obsMu   sync.Mutex
	onDirty []func()
}

// NewStore returns a store holding an unsaved, one-page design of the given size.
func NewStore(width, height int) *Store {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	s := &Store{}
	s.resetLocked(width, height)
	return s
}

func (s *Store) resetLocked(width, height int) {
	s.designID = ""
	s.createID = ""
	s.name = document.DefaultName
	s.prompt = ""
	s.width, s.height = width, height
	s.dirty = false
	s.pages = []document.Page{{ID: newPageID(), Width: width, Height: height}}
	s.active = 0
	s.layers = nil
}

// Reset returns the store to a new default design. The attached canvas is kept.
func (s *Store) Reset() {
	s.mu.Lock()
	s.resetLocked(DefaultWidth, DefaultHeight)
	s.mu.Unlock()
}

// OnDirty registers fn to run on every edit that marks the design dirty.
func (s *Store) OnDirty(fn func()) {
	s.obsMu.Lock()
	s.onDirty = append(s.onDirty, fn)
	s.obsMu.Unlock()
}

func (s *Store) notifyDirty() {
	s.obsMu.Lock()
	fns := append([]func(){}, s.onDirty...)
	s.obsMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (s *Store) SetCanvas(c canvas.Canvas) {
	s.mu.Lock()
	s.canvas = c
	s.mu.Unlock()
}

func (s *Store) Canvas() canvas.Canvas {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canvas
}

// SetDesignID records the service id. It drops any pending creation id.
func (s *Store) SetDesignID(id string) {
	s.mu.Lock()
	s.designID = id
	if id != "" {
		s.createID = ""
	}
	s.mu.Unlock()
}

// creationID returns the id a create request offers the service, choosing one on first use.
// It stays stable until the design is created or the store is reset, so a repeated create
// lands on the same record.
func (s *Store) creationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createID == "" {
		s.createID = newDesignID()
	}
	return s.createID
}

func (s *Store) setCreationID(id string) {
	s.mu.Lock()
	s.createID = id
	s.mu.Unlock()
}

func (s *Store) DesignID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.designID
}

func (s *Store) SetName(name string) {
	if name == "" {
		name = document.DefaultName
	}
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

func (s *Store) SetPrompt(prompt string) {
	s.mu.Lock()
	s.prompt = prompt
	s.mu.Unlock()
}

// SetCanvasDimensions records the working dimensions. Page content is not touched.
func (s *Store) SetCanvasDimensions(width, height int) {
	s.mu.Lock()
	s.width, s.height = width, height
	s.mu.Unlock()
}

func (s *Store) Dimensions() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height
}

// SetPages replaces the page list and re-clamps the active index.
func (s *Store) SetPages(pages []document.Page) {
	s.mu.Lock()
	s.pages = clonePages(pages)
	s.active = clampIndex(s.active, len(s.pages))
	s.mu.Unlock()
}

// SetActivePageIndex moves the active pointer; out-of-range values are clamped.
func (s *Store) SetActivePageIndex(i int) {
	s.mu.Lock()
	s.active = clampIndex(i, len(s.pages))
	s.mu.Unlock()
}

func (s *Store) ActivePageIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *Store) Pages() []document.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePages(s.pages)
}

// UpdateCurrentPageSnapshot writes the live canvas into the active page, stamping the
// working dimensions on it. It only fails when the engine cannot serialize.
func (s *Store) UpdateCurrentPageSnapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// snapshot writes the live canvas into the active page and returns the resulting state,
// edit generation included, under one lock.
func (s *Store) snapshot() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.snapshotLocked(); err != nil {
		return State{}, err
	}
	return s.stateLocked(), nil
}

func (s *Store) snapshotLocked() error {
	if s.canvas == nil {
		return ErrNoCanvas
	}
	scene, err := s.canvas.ToJSON()
	if err != nil {
		return fmt.Errorf("serialize canvas: %w", err)
	}
	if len(s.pages) == 0 {
		s.pages = []document.Page{{ID: newPageID()}}
		s.active = 0
	}
	p := &s.pages[s.active]
	p.CanvasJSON = scene
	p.Width, p.Height = s.width, s.height
	return nil
}

// SetDirty sets the unsaved-changes flag. Setting it bumps the edit generation and
// notifies observers, so every edit re-arms autosave.
func (s *Store) SetDirty(dirty bool) {
	s.mu.Lock()
	s.dirty = dirty
	if dirty {
		s.gen++
	}
	s.mu.Unlock()
	if dirty {
		s.notifyDirty()
	}
}

// MarkEdited records a content mutation.
func (s *Store) MarkEdited() { s.SetDirty(true) }

// ClearDirtyIf clears the flag only when no edit happened since generation gen.
func (s *Store) ClearDirtyIf(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.dirty = false
	return true
}

func (s *Store) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// RefreshLayers rebuilds the layer list from the canvas objects.
func (s *Store) RefreshLayers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers = s.layers[:0]
	if s.canvas == nil {
		return
	}
	objs := s.canvas.Objects()
	for i := len(objs) - 1; i >= 0; i-- {
		o := objs[i]
		name := o.Name
		if name == "" {
			name = string(o.Type)
		}
		s.layers = append(s.layers, Layer{ID: o.ID, Name: name, Type: o.Type, Visible: !o.Hidden})
	}
}

func (s *Store) Layers() []Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Layer(nil), s.layers...)
}

// State returns a deep copy of the store.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Store) stateLocked() State {
	return State{
		DesignID:        s.designID,
		Name:            s.name,
		Prompt:          s.prompt,
		Width:           s.width,
		Height:          s.height,
		Dirty:           s.dirty,
		Generation:      s.gen,
		Pages:           clonePages(s.pages),
		ActivePageIndex: s.active,
		Layers:          append([]Layer(nil), s.layers...),
		HasCanvas:       s.canvas != nil,
	}
}

// SetPageThumbnails stores preview images by page id. Unknown ids are ignored.
func (s *Store) SetPageThumbnails(thumbs map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pages {
		if t, ok := thumbs[s.pages[i].ID]; ok {
			t := t
			s.pages[i].ThumbnailDataURL = &t
		}
	}
}

// switchPage snapshots the active page, makes page i active and loads it into the canvas.
func (s *Store) switchPage(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.pages) {
		return fmt.Errorf("%w: %d", ErrPageIndex, i)
	}
	if err := s.snapshotLocked(); err != nil {
		return err
	}
	s.active = i
	return s.showActiveLocked()
}

// addPage appends a blank page after the active one and shows it.
func (s *Store) addPage(width, height int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("%w: %dx%d", ErrInvalidLayout, width, height)
	}
	if err := s.snapshotLocked(); err != nil {
		return 0, err
	}
	at := s.active + 1
	page := document.Page{ID: newPageID(), Width: width, Height: height}
	s.pages = append(s.pages, document.Page{})
	copy(s.pages[at+1:], s.pages[at:])
	s.pages[at] = page
	s.active = at
	return at, s.showActiveLocked()
}

// removePage drops page i; the neighbour that takes its slot becomes active when needed.
func (s *Store) removePage(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.pages) {
		return fmt.Errorf("%w: %d", ErrPageIndex, i)
	}
	if len(s.pages) == 1 {
		return ErrLastPage
	}
	if s.canvas == nil {
		return ErrNoCanvas
	}
	if i != s.active {
		if err := s.snapshotLocked(); err != nil {
			return err
		}
	}
	wasActive := i == s.active
	s.pages = append(s.pages[:i], s.pages[i+1:]...)
	switch {
	case wasActive:
		s.active = clampIndex(i, len(s.pages))
		return s.showActiveLocked()
	case i < s.active:
		s.active--
	}
	return nil
}

// resizeActive changes the working and active-page dimensions together.
func (s *Store) resizeActive(width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidLayout, width, height)
	}
	if s.canvas == nil {
		return ErrNoCanvas
	}
	s.width, s.height = width, height
	s.canvas.SetDimensions(width, height)
	if len(s.pages) > 0 {
		s.pages[s.active].Width, s.pages[s.active].Height = width, height
	}
	return nil
}

func (s *Store) showActive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.showActiveLocked()
}

// showActiveLocked applies the active page's dimensions and content to the canvas.
func (s *Store) showActiveLocked() error {
	if s.canvas == nil {
		return ErrNoCanvas
	}
	p := s.pages[s.active]
	if p.Width > 0 && p.Height > 0 {
		s.width, s.height = p.Width, p.Height
	}
	s.canvas.SetDimensions(s.width, s.height)
	content := p.CanvasJSON
	if content == "" {
		content = canvas.BlankJSON()
	}
	if err := s.canvas.LoadFromJSON(content); err != nil {
		return fmt.Errorf("load page %d: %w", s.active, err)
	}
	return nil
}

func clampIndex(i, n int) int {
	if n <= 0 || i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}

func clonePages(pages []document.Page) []document.Page {
	if pages == nil {
		return nil
	}
	out := make([]document.Page, len(pages))
	copy(out, pages)
	for i := range out {
		if t := out[i].ThumbnailDataURL; t != nil {
			v := *t
			out[i].ThumbnailDataURL = &v
		}
	}
	return out
}
