package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// RawNerItem is one span detected by the upstream NER service
type RawNerItem struct {
	Entity     string `json:"entity"`               // Surface form
	NerType    string `json:"nerType"`              // Coarse category (enterprise, time, person, ...)
	Type       string `json:"type"`                 // Fine category (stockCN, bond, ...)
	ID         string `json:"id"`                   // External identifier, often a listing code
	FullName   string `json:"fullName,omitempty"`   // Canonical name
	StartIndex int    `json:"startIndex,omitempty"` // Offsets are carried but unused
	EndIndex   int    `json:"endIndex,omitempty"`
}

// UnmarshalJSON tolerates non-string scalars in the textual fields; the
// service occasionally emits numeric ids.
func (i *RawNerItem) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*i = RawNerItem{
		Entity:     scalarString(fields["entity"]),
		NerType:    scalarString(fields["nerType"]),
		Type:       scalarString(fields["type"]),
		ID:         scalarString(fields["id"]),
		FullName:   scalarString(fields["fullName"]),
		StartIndex: scalarInt(fields["startIndex"]),
		EndIndex:   scalarInt(fields["endIndex"]),
	}
	return nil
}

// NerGroup is one entry of the payload's data list. The service emits either a
// single item or a list of items per group.
type NerGroup []RawNerItem

// UnmarshalJSON accepts an object, a list of objects, or anything else (ignored)
func (g *NerGroup) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*g = nil
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case '{':
		var item RawNerItem
		if err := json.Unmarshal(data, &item); err != nil {
			return err
		}
		*g = NerGroup{item}
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		for _, r := range raw {
			r = bytes.TrimSpace(r)
			if len(r) == 0 || r[0] != '{' {
				continue // non-object members are skipped
			}
			var item RawNerItem
			if err := json.Unmarshal(r, &item); err != nil {
				return err
			}
			*g = append(*g, item)
		}
	}
	return nil
}

// NerPayload is the parsed NER response
type NerPayload struct {
	Data []NerGroup `json:"data"`
}

// Items flattens the payload's groups in encounter order
func (p *NerPayload) Items() []RawNerItem {
	if p == nil {
		return nil
	}
	var items []RawNerItem
	for _, group := range p.Data {
		items = append(items, group...)
	}
	return items
}

// Enterprise is a normalized company or institution
type Enterprise struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Codes      []string   `json:"codes"`
	Role       Role       `json:"role,omitempty"`
	Confidence Confidence `json:"confidence,omitempty"`
}

// TimeEntity is a normalized time expression
type TimeEntity struct {
	ID         string     `json:"id"`
	Raw        string     `json:"raw"`
	Role       Role       `json:"role,omitempty"`
	Confidence Confidence `json:"confidence,omitempty"`
}

// Person is a normalized person mention
type Person struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Role       Role       `json:"role,omitempty"`
	Confidence Confidence `json:"confidence,omitempty"`
}

// Location is a normalized place mention. Locations are collected but not
// exposed in EntityBundle.
type Location struct {
	ID       string `json:"id"`
	Location string `json:"location"`
}

// EntityBundle is the unit handed to the classifier and the scorer
type EntityBundle struct {
	CurrentDate string       `json:"current_date,omitempty"`
	Enterprises []Enterprise `json:"ner_enterprise"`
	Times       []TimeEntity `json:"ner_time"`
	Persons     []Person     `json:"ner_person"`
}

// NewEntityBundle returns a bundle with non-nil, empty lists
func NewEntityBundle(currentDate string) *EntityBundle {
	return &EntityBundle{
		CurrentDate: currentDate,
		Enterprises: []Enterprise{},
		Times:       []TimeEntity{},
		Persons:     []Person{},
	}
}

// IsEmpty reports whether the bundle holds no classifiable entity
func (b *EntityBundle) IsEmpty() bool {
	return b == nil || (len(b.Enterprises) == 0 && len(b.Times) == 0 && len(b.Persons) == 0)
}

// Len returns the total number of records across the three lists
func (b *EntityBundle) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Enterprises) + len(b.Times) + len(b.Persons)
}

// IDs returns every record id in enterprise, time, person order
func (b *EntityBundle) IDs() []string {
	if b == nil {
		return nil
	}
	ids := make([]string, 0, b.Len())
	for _, e := range b.Enterprises {
		ids = append(ids, e.ID)
	}
	for _, t := range b.Times {
		ids = append(ids, t.ID)
	}
	for _, p := range b.Persons {
		ids = append(ids, p.ID)
	}
	return ids
}

// FamilyOf returns the role family expected for the record with the given id
func (b *EntityBundle) FamilyOf(id string) (RoleFamily, bool) {
	if b == nil {
		return FamilyUnknown, false
	}
	for _, e := range b.Enterprises {
		if e.ID == id {
			return FamilyParty, true
		}
	}
	for _, t := range b.Times {
		if t.ID == id {
			return FamilyTime, true
		}
	}
	for _, p := range b.Persons {
		if p.ID == id {
			return FamilyParty, true
		}
	}
	return FamilyUnknown, false
}

// Clone returns a deep copy; role merges on the copy never touch the original
func (b *EntityBundle) Clone() *EntityBundle {
	if b == nil {
		return nil
	}
	out := &EntityBundle{
		CurrentDate: b.CurrentDate,
		Enterprises: make([]Enterprise, len(b.Enterprises)),
		Times:       make([]TimeEntity, len(b.Times)),
		Persons:     make([]Person, len(b.Persons)),
	}
	for i, e := range b.Enterprises {
		if e.Codes != nil {
			e.Codes = append([]string{}, e.Codes...)
		}
		out.Enterprises[i] = e
	}
	copy(out.Times, b.Times)
	copy(out.Persons, b.Persons)
	return out
}

// ClearRoles strips role and confidence from every record
func (b *EntityBundle) ClearRoles() {
	if b == nil {
		return
	}
	for i := range b.Enterprises {
		b.Enterprises[i].Role, b.Enterprises[i].Confidence = "", ""
	}
	for i := range b.Times {
		b.Times[i].Role, b.Times[i].Confidence = "", ""
	}
	for i := range b.Persons {
		b.Persons[i].Role, b.Persons[i].Confidence = "", ""
	}
}

func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case 't', 'f', 'n', '{', '[':
		return ""
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

func scalarInt(raw json.RawMessage) int {
	s := scalarString(raw)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
