package adapters

import "encoding/json"

// GenericAdapter reads the current layout: {"data": [...], "succeed": true, ...}
type GenericAdapter struct{}

// NewGenericAdapter creates a new generic adapter
func NewGenericAdapter() *GenericAdapter {
	return &GenericAdapter{}
}

// Name returns the adapter name
func (a *GenericAdapter) Name() string {
	return "generic"
}

// CanHandle always returns true (fallback adapter)
func (a *GenericAdapter) CanHandle(doc Document) bool {
	return true
}

// ExtractData returns the top-level data field
func (a *GenericAdapter) ExtractData(doc Document) (json.RawMessage, bool) {
	data, ok := doc["data"]
	if !ok || !isPresent(data) {
		return nil, false
	}
	return data, true
}
