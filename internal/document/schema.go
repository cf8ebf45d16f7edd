package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

var ErrInvalidCanvasData = errors.New("document: invalid canvas data")

const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["_multiPage", "pages", "activePageIndex"],
  "properties": {
    "_multiPage": {"const": true},
    "activePageIndex": {"type": "integer", "minimum": 0},
    "pages": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "canvasJSON", "width", "height"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "canvasJSON": {"type": ["string", "object"]},
          "width": {"type": "integer", "minimum": 1},
          "height": {"type": "integer", "minimum": 1}
        }
      }
    }
  }
}`

var compiledEnvelope = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(envelopeSchema))
})

// Validate checks canvasData before it is persisted. Multi-page envelopes are checked against
// the envelope schema; a single scene must be a JSON object.
func Validate(raw json.RawMessage) error {
	value, err := Unwrap(raw)
	if err != nil {
		return err
	}
	if !IsMultiPage(value) {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(value, &obj); err != nil {
			return fmt.Errorf("%w: scene is not a JSON object", ErrInvalidCanvasData)
		}
		return nil
	}

	schema, err := compiledEnvelope()
	if err != nil {
		return fmt.Errorf("document: compile envelope schema: %w", err)
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(value))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCanvasData, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidCanvasData, strings.Join(msgs, "; "))
}
