package canvas

import (
	"encoding/json"
	"reflect"
	"strings"
)

// Scenes written by other editors carry properties this engine does not draw (scaleX,
// opacity, fontFamily, ...). They are kept verbatim and written back on serialize.

type objectFields Object

type sceneFields sceneDoc

var (
	objectKeys = jsonKeys(reflect.TypeOf(objectFields{}))
	sceneKeys  = jsonKeys(reflect.TypeOf(sceneFields{}))
)

func (o *Object) UnmarshalJSON(b []byte) error {
	var f objectFields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	extra, err := unknownFields(b, objectKeys)
	if err != nil {
		return err
	}
	f.Extra = extra
	*o = Object(f)
	return nil
}

func (o Object) MarshalJSON() ([]byte, error) {
	return withExtra(objectFields(o), o.Extra)
}

func (d *sceneDoc) UnmarshalJSON(b []byte) error {
	var f sceneFields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	extra, err := unknownFields(b, sceneKeys)
	if err != nil {
		return err
	}
	f.Extra = extra
	*d = sceneDoc(f)
	return nil
}

func (d sceneDoc) MarshalJSON() ([]byte, error) {
	return withExtra(sceneFields(d), d.Extra)
}

// jsonKeys lists the lower-cased JSON names of t's fields.
func jsonKeys(t reflect.Type) map[string]bool {
	keys := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = t.Field(i).Name
		}
		keys[strings.ToLower(name)] = true
	}
	return keys
}

// unknownFields returns the members of the object b that are not in known. encoding/json
// matches names case-insensitively, so the comparison does too.
func unknownFields(b []byte, known map[string]bool) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, err
	}
	for k := range all {
		if known[strings.ToLower(k)] {
			delete(all, k)
		}
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

func withExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return b, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, ok := m[k]; !ok {
			m[k] = raw
		}
	}
	return json.Marshal(m)
}
