// Package document defines the persisted canvasData formats of a design: the legacy single
// scene and the tagged multi-page envelope.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	DefaultName = "Untitled Design"
	Category    = "canvas"
	multiTag    = "_multiPage"
)

var (
	ErrNoCanvasData = errors.New("document: canvas data missing")
	ErrInvalidSize  = errors.New("document: invalid size")
)

// Format tells which on-disk shape canvasData has.
type Format int

const (
	FormatSingle Format = iota
	FormatMulti
)

func (f Format) String() string {
	if f == FormatMulti {
		return "multi-page"
	}
	return "single-page"
}

// Page is one page of a design while editing. ThumbnailDataURL is never persisted.
type Page struct {
	ID               string
	CanvasJSON       string
	ThumbnailDataURL *string
	Width            int
	Height           int
}

// storedPage is the persisted page shape inside the envelope.
type storedPage struct {
	ID         string `json:"id"`
	CanvasJSON string `json:"canvasJSON"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

type envelope struct {
	MultiPage       bool         `json:"_multiPage"`
	Pages           []storedPage `json:"pages"`
	ActivePageIndex int          `json:"activePageIndex"`
}

// Parsed is the decoded form of a design's canvasData.
type Parsed struct {
	Format Format
	// Single holds the scene for FormatSingle.
	Single          string
	Pages           []Page
	ActivePageIndex int
}

// Parse decodes canvasData as it arrives on the wire: either a JSON string holding serialized
// JSON or an already structured value. A string that does not parse is used as is.
func Parse(raw json.RawMessage) (Parsed, error) {
	value, err := Unwrap(raw)
	if err != nil {
		return Parsed{}, err
	}

	if !IsMultiPage(value) {
		return Parsed{Format: FormatSingle, Single: string(value)}, nil
	}

	var env struct {
		Pages []struct {
			ID         string          `json:"id"`
			CanvasJSON json.RawMessage `json:"canvasJSON"`
			Width      float64         `json:"width"`
			Height     float64         `json:"height"`
		} `json:"pages"`
		ActivePageIndex float64 `json:"activePageIndex"`
	}
	if err := json.Unmarshal(value, &env); err != nil {
		return Parsed{}, fmt.Errorf("document: decode envelope: %w", err)
	}
	out := Parsed{
		Format:          FormatMulti,
		Pages:           make([]Page, 0, len(env.Pages)),
		ActivePageIndex: pageIndex(env.ActivePageIndex),
	}
	for _, p := range env.Pages {
		out.Pages = append(out.Pages, Page{
			ID:         p.ID,
			CanvasJSON: sceneString(p.CanvasJSON),
			Width:      int(math.Round(p.Width)),
			Height:     int(math.Round(p.Height)),
		})
	}
	return out, nil
}

// pageIndex converts a stored index without overflowing; callers clamp to the page count.
func pageIndex(f float64) int {
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > math.MaxInt32:
		return math.MaxInt32
	}
	return int(f)
}

// Unwrap returns the structured value behind raw canvasData.
func Unwrap(raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrNoCanvasData
	}
	if raw[0] != '"' {
		return raw, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, fmt.Errorf("document: decode canvas data: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoCanvasData
	}
	return json.RawMessage(text), nil
}

// IsMultiPage reports whether value is an object carrying "_multiPage": true.
func IsMultiPage(value json.RawMessage) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(value, &probe); err != nil {
		return false
	}
	return string(bytes.TrimSpace(probe[multiTag])) == "true"
}

// sceneString normalizes a page's canvasJSON to the string the engine expects.
func sceneString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// EncodeSingle returns the canvasData string for a one-page design: the scene itself.
func EncodeSingle(scene string) string { return scene }

// EncodeMulti returns the canvasData string of the multi-page envelope.
func EncodeMulti(pages []Page, active int) (string, error) {
	env := envelope{MultiPage: true, Pages: make([]storedPage, len(pages)), ActivePageIndex: active}
	for i, p := range pages {
		env.Pages[i] = storedPage{ID: p.ID, CanvasJSON: p.CanvasJSON, Width: p.Width, Height: p.Height}
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("document: encode envelope: %w", err)
	}
	return string(b), nil
}

// ParseSize reads a "WxH" size string.
func ParseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	w, err1 := strconv.Atoi(strings.TrimSpace(ws))
	h, err2 := strconv.Atoi(strings.TrimSpace(hs))
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	return w, h, nil
}

// FormatSize renders dimensions as "WxH".
func FormatSize(w, h int) string { return strconv.Itoa(w) + "x" + strconv.Itoa(h) }
