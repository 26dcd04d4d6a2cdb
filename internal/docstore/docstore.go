// Package docstore persists JSON documents in named collections. Collection
// names are slash separated paths so nested records such as
// conferences/{id}/paper_submissions live next to their parent.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Filter matches documents whose top-level string fields equal the given values.
type Filter map[string]string

// Store is implemented by every backend.
type Store interface {
	// Get decodes the document into out.
	Get(ctx context.Context, collection, id string, out any) error
	// Put creates or replaces the document.
	Put(ctx context.Context, collection, id string, doc any) error
	Delete(ctx context.Context, collection, id string) error
	// Find decodes every matching document into out, which must point to a slice.
	Find(ctx context.Context, collection string, filter Filter, out any) error
}

// Path joins path segments into a collection name.
func Path(parts ...string) string {
	return strings.Join(parts, "/")
}

func encode(doc any) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if len(raw) == 0 || raw[0] != '{' {
		return nil, errors.New("encode document: not a JSON object")
	}
	return raw, nil
}

func decodeOne(raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// decodeAll unmarshals a list of raw documents into the slice behind out.
func decodeAll(raws [][]byte, out any) error {
	buf := make([]byte, 0, 2+len(raws)*64)
	buf = append(buf, '[')
	for i, r := range raws {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, r...)
	}
	buf = append(buf, ']')
	if err := json.Unmarshal(buf, out); err != nil {
		return fmt.Errorf("decode documents: %w", err)
	}
	return nil
}

func matches(raw []byte, filter Filter) bool {
	if len(filter) == 0 {
		return true
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false
	}
	for k, want := range filter {
		got, ok := fields[k].(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func validField(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func sortedKeys(f Filter) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
