package adapters

import (
	"bytes"
	"encoding/json"
)

const legacyEnvelopeKey = "windNerPlugInfo"

// LegacyAdapter reads the older layout where the data list sits inside a
// windNerPlugInfo envelope. Some gateways deliver the envelope as a JSON
// encoded string.
type LegacyAdapter struct{}

// NewLegacyAdapter creates a new legacy envelope adapter
func NewLegacyAdapter() *LegacyAdapter {
	return &LegacyAdapter{}
}

// Name returns the adapter name
func (a *LegacyAdapter) Name() string {
	return "legacy"
}

// CanHandle matches documents with an envelope and no top-level data
func (a *LegacyAdapter) CanHandle(doc Document) bool {
	if isPresent(doc["data"]) {
		return false
	}
	return isPresent(doc[legacyEnvelopeKey])
}

// ExtractData unwraps the envelope and returns its data field
func (a *LegacyAdapter) ExtractData(doc Document) (json.RawMessage, bool) {
	envelope := bytes.TrimSpace(doc[legacyEnvelopeKey])
	if len(envelope) > 0 && envelope[0] == '"' {
		var inner string
		if err := json.Unmarshal(envelope, &inner); err != nil {
			return nil, false
		}
		envelope = []byte(inner)
	}

	var inner Document
	if err := json.Unmarshal(envelope, &inner); err != nil {
		return nil, false
	}

	data, ok := inner["data"]
	if !ok || !isPresent(data) {
		return nil, false
	}
	return data, true
}
