// Package yamlutil wraps YAML parsing to isolate the external dependency.
// Settings files and note frontmatter both go through it.
package yamlutil

import (
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"
)

// MaxInputSize limits YAML input to prevent memory exhaustion (default 1MB).
var MaxInputSize = 1 << 20

var (
	ErrNilData        = errors.New("yamlutil: nil or empty data")
	ErrNilDestination = errors.New("yamlutil: nil destination pointer")
	ErrInputTooLarge  = errors.New("yamlutil: input exceeds maximum size")
	ErrNotMapping     = errors.New("yamlutil: document is not a mapping")
)

func checkSize(data []byte) error {
	if len(data) == 0 {
		return ErrNilData
	}
	if len(data) > MaxInputSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrInputTooLarge, len(data), MaxInputSize)
	}
	return nil
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	if err := checkSize(data); err != nil {
		return err
	}
	if v == nil {
		return ErrNilDestination
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("yamlutil: %w", err)
	}
	return nil
}

// UnmarshalStrict rejects unknown fields in the input.
func UnmarshalStrict(data []byte, v any) error {
	if err := checkSize(data); err != nil {
		return err
	}
	if v == nil {
		return ErrNilDestination
	}
	if err := yaml.UnmarshalWithOptions(data, v, yaml.Strict()); err != nil {
		return fmt.Errorf("yamlutil: %w", err)
	}
	return nil
}

// Marshal encodes v.
func Marshal(v any) ([]byte, error) {
	result, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yamlutil: %w", err)
	}
	return result, nil
}

// Document is a top-level YAML mapping that keeps its key order, so a
// rewritten frontmatter block reads like the one the user wrote.
type Document struct {
	items yaml.MapSlice
}

// ParseDocument decodes a YAML mapping. Empty or whitespace-only input
// yields an empty document.
func ParseDocument(data []byte) (*Document, error) {
	if len(data) > MaxInputSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrInputTooLarge, len(data), MaxInputSize)
	}
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("yamlutil: %w", err)
	}
	if raw == nil {
		return &Document{}, nil
	}
	if _, ok := raw.(map[string]any); !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotMapping, raw)
	}

	var items yaml.MapSlice
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("yamlutil: %w", err)
	}
	return &Document{items: items}, nil
}

// Map returns the document as a plain map. Values are shared, not copied.
func (d *Document) Map() map[string]any {
	m := make(map[string]any, len(d.items))
	for _, it := range d.items {
		m[fmt.Sprint(it.Key)] = it.Value
	}
	return m
}

// Get returns the value stored under key.
func (d *Document) Get(key string) (any, bool) {
	for _, it := range d.items {
		if fmt.Sprint(it.Key) == key {
			return it.Value, true
		}
	}
	return nil, false
}

// Set replaces the value of key in place, or appends key when absent.
func (d *Document) Set(key string, value any) {
	for i, it := range d.items {
		if fmt.Sprint(it.Key) == key {
			d.items[i].Value = value
			return
		}
	}
	d.items = append(d.items, yaml.MapItem{Key: key, Value: value})
}

// Delete removes key. It reports whether key was present.
func (d *Document) Delete(key string) bool {
	for i, it := range d.items {
		if fmt.Sprint(it.Key) == key {
			d.items = append(d.items[:i], d.items[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of top-level keys.
func (d *Document) Len() int {
	return len(d.items)
}

// Marshal encodes the document, preserving key order. An empty document
// encodes to nil.
func (d *Document) Marshal() ([]byte, error) {
	if len(d.items) == 0 {
		return nil, nil
	}
	return Marshal(d.items)
}
