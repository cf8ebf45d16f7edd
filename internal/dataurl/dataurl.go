// Package dataurl encodes and decodes base64 "data:" URLs used for thumbnails and embedded images.
package dataurl

import (
	"encoding/base64"
	"errors"
	"strings"
)

var ErrInvalid = errors.New("invalid data url")

// Encode returns data:<mime>;base64,<payload>.
func Encode(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Decode splits a base64 data URL into its media type and bytes.
func Decode(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "data:")
	if !ok {
		return "", nil, ErrInvalid
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalid
	}
	mime, isB64 := strings.CutSuffix(meta, ";base64")
	if !isB64 {
		return "", nil, ErrInvalid
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, errors.Join(ErrInvalid, err)
	}
	if mime == "" {
		mime = "text/plain"
	}
	return mime, data, nil
}

// Is reports whether s looks like a data URL.
func Is(s string) bool { return strings.HasPrefix(strings.TrimSpace(s), "data:") }
