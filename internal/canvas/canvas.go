// Package canvas is the drawable scene engine behind the design studio editor.
//
// The studio only talks to it through the Canvas interface: load and serialize a scene as a
// JSON string, track surface dimensions and the pan/zoom viewport, and render a thumbnail.
package canvas

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Canvas is the engine contract consumed by the studio.
type Canvas interface {
	LoadFromJSON(data string) error
	ToJSON() (string, error)
	SetDimensions(width, height int)
	Dimensions() (int, int)
	ResetViewport()
	Viewport() Transform
	SetViewport(t Transform)
	Thumbnail(opts ThumbnailOptions) (string, error)
	Objects() []Object

	Add(obj Object) string
	Remove(id string) error
	Update(id string, fn func(*Object)) error
	SetBackground(color string)
	Clear()
}

const SceneVersion = "5.3.0"

var (
	ErrEmptyScene = errors.New("canvas: empty scene data")
	ErrNotFound   = errors.New("canvas: object not found")
)

// Transform is an affine viewport matrix [a b c d e f]; scale in a/d, pan in e/f.
type Transform [6]float64

// Identity is the untransformed viewport.
var Identity = Transform{1, 0, 0, 1, 0, 0}

type ObjectType string

const (
	TypeRect   ObjectType = "rect"
	TypeCircle ObjectType = "circle"
	TypeText   ObjectType = "text"
	TypeLine   ObjectType = "line"
	TypeImage  ObjectType = "image"
)

// Object is a drawable item. Left/Top is the top-left of its bounding box.
type Object struct {
	ID          string     `json:"id,omitempty"`
	Type        ObjectType `json:"type"`
	Name        string     `json:"name,omitempty"`
	Left        float64    `json:"left"`
	Top         float64    `json:"top"`
	Width       float64    `json:"width,omitempty"`
	Height      float64    `json:"height,omitempty"`
	Radius      float64    `json:"radius,omitempty"`
	Angle       float64    `json:"angle,omitempty"`
	Fill        string     `json:"fill,omitempty"`
	Stroke      string     `json:"stroke,omitempty"`
	StrokeWidth float64    `json:"strokeWidth,omitempty"`
	Text        string     `json:"text,omitempty"`
	FontSize    float64    `json:"fontSize,omitempty"`
	Points      []float64  `json:"points,omitempty"`
	Src         string     `json:"src,omitempty"`
	Hidden      bool       `json:"hidden,omitempty"`

	// Extra holds properties the engine does not model.
	Extra map[string]json.RawMessage `json:"-"`
}

type sceneDoc struct {
	Version    string   `json:"version"`
	Background string   `json:"background,omitempty"`
	Objects    []Object `json:"objects"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Scene is the in-process Canvas implementation. It is safe for concurrent use.
type Scene struct {
	mu       sync.RWMutex
	width    int
	height   int
	viewport Transform
	doc      sceneDoc
}

// BlankJSON is the serialized form of an empty scene.
func BlankJSON() string {
	s, _ := NewScene(0, 0).ToJSON()
	return s
}

// NewScene returns an empty scene of the given surface size.
func NewScene(width, height int) *Scene {
	return &Scene{
		width:    width,
		height:   height,
		viewport: Identity,
		doc:      sceneDoc{Version: SceneVersion, Background: "#ffffff", Objects: []Object{}},
	}
}

var _ Canvas = (*Scene)(nil)

func (s *Scene) LoadFromJSON(data string) error {
	if strings.TrimSpace(data) == "" {
		return ErrEmptyScene
	}
	var doc sceneDoc
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return fmt.Errorf("canvas: decode scene: %w", err)
	}
	if doc.Version == "" {
		doc.Version = SceneVersion
	}
	if doc.Objects == nil {
		doc.Objects = []Object{}
	}
	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return nil
}

func (s *Scene) ToJSON() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := json.Marshal(s.doc)
	if err != nil {
		return "", fmt.Errorf("canvas: encode scene: %w", err)
	}
	return string(b), nil
}

// SetDimensions resizes the drawing surface. Object geometry is left as is.
func (s *Scene) SetDimensions(width, height int) {
	s.mu.Lock()
	s.width, s.height = width, height
	s.mu.Unlock()
}

func (s *Scene) Dimensions() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height
}

func (s *Scene) ResetViewport() { s.SetViewport(Identity) }

func (s *Scene) Viewport() Transform {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewport
}

func (s *Scene) SetViewport(t Transform) {
	s.mu.Lock()
	s.viewport = t
	s.mu.Unlock()
}

// Objects returns a copy of the objects in z-order, bottom first.
func (s *Scene) Objects() []Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Object, len(s.doc.Objects))
	copy(out, s.doc.Objects)
	return out
}

// Background returns the scene background color.
func (s *Scene) Background() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Background
}

func (s *Scene) SetBackground(color string) {
	s.mu.Lock()
	s.doc.Background = color
	s.mu.Unlock()
}

// Add appends obj on top and returns its id, assigning one when empty.
func (s *Scene) Add(obj Object) string {
	if obj.ID == "" {
		obj.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.doc.Objects = append(s.doc.Objects, obj)
	s.mu.Unlock()
	return obj.ID
}

func (s *Scene) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.doc.Objects {
		if o.ID == id {
			s.doc.Objects = append(s.doc.Objects[:i], s.doc.Objects[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Update applies fn to the object with the given id.
func (s *Scene) Update(id string, fn func(*Object)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Objects {
		if s.doc.Objects[i].ID == id {
			fn(&s.doc.Objects[i])
			return nil
		}
	}
	return ErrNotFound
}

// Clear removes every object.
func (s *Scene) Clear() {
	s.mu.Lock()
	s.doc.Objects = []Object{}
	s.mu.Unlock()
}
