// Package blob stores uploaded binary payloads and hands back references
// that the preview layer can resolve to a URL.
package blob

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var ErrBadRef = errors.New("unrecognized blob reference")

// Store is implemented by every payload backend.
type Store interface {
	// Put stores data under key and returns the reference to persist on
	// the item.
	Put(ctx context.Context, key, mimeType string, data []byte) (string, error)
	// URL resolves a reference to something a viewer can load.
	URL(ctx context.Context, ref string) (string, error)
	// Delete removes the payload. Unknown references are ignored.
	Delete(ctx context.Context, ref string) error
	// Type returns the backend identifier ("inline", "minio").
	Type() string
}

// Inline keeps payloads in the reference itself as a data URI.
type Inline struct{}

func NewInline() *Inline {
	return &Inline{}
}

func (Inline) Type() string { return "inline" }

func (Inline) Put(_ context.Context, _ string, mimeType string, data []byte) (string, error) {
	return DataURI(mimeType, data), nil
}

func (Inline) URL(_ context.Context, ref string) (string, error) {
	if !strings.HasPrefix(ref, "data:") {
		return "", ErrBadRef
	}
	return ref, nil
}

func (Inline) Delete(context.Context, string) error {
	return nil
}

// DataURI encodes data as a base64 data URI.
func DataURI(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI reverses DataURI.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, ErrBadRef
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return "", nil, ErrBadRef
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data uri: %w", err)
	}
	return strings.TrimSuffix(header, ";base64"), data, nil
}
