package adapters

import (
	"encoding/json"
)

// Document is a decoded NER response before its data list is parsed
type Document map[string]json.RawMessage

// Adapter locates the entity groups inside one NER response layout
type Adapter interface {
	// Name returns the adapter name
	Name() string

	// CanHandle checks if this adapter understands the document layout
	CanHandle(doc Document) bool

	// ExtractData returns the raw data list, or false when it is absent
	ExtractData(doc Document) (json.RawMessage, bool)
}

// Registry manages payload adapters
type Registry struct {
	adapters []Adapter
	generic  Adapter
}

// NewRegistry creates a new adapter registry
func NewRegistry() *Registry {
	registry := &Registry{
		adapters: make([]Adapter, 0),
	}

	registry.Register(NewLegacyAdapter())

	// Top-level data is the current layout and the fallback
	registry.generic = NewGenericAdapter()

	return registry
}

// Register registers a new adapter
func (r *Registry) Register(adapter Adapter) {
	r.adapters = append(r.adapters, adapter)
}

// FindAdapter finds the adapter for the given document
func (r *Registry) FindAdapter(doc Document) Adapter {
	for _, adapter := range r.adapters {
		if adapter.CanHandle(doc) {
			return adapter
		}
	}
	return r.generic
}

// isPresent reports whether a raw field exists and is not JSON null
func isPresent(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	return string(raw) != "null"
}
