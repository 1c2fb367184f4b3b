package model

// RoleEntry is one id → (role, confidence) pair
type RoleEntry struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Confidence Confidence `json:"confidence,omitempty"`
}

// RoleAssignment is an ordered mapping from entity id to role. Order is the
// position of an id's first appearance; a later Set for the same id replaces
// its role and confidence in place.
type RoleAssignment struct {
	entries []RoleEntry
	index   map[string]int
}

// NewRoleAssignment builds an assignment from entries, applying Set in order
func NewRoleAssignment(entries ...RoleEntry) *RoleAssignment {
	a := &RoleAssignment{}
	for _, e := range entries {
		a.Set(e.ID, e.Role, e.Confidence)
	}
	return a
}

// Set assigns a role to an id
func (a *RoleAssignment) Set(id string, role Role, confidence Confidence) {
	if a.index == nil {
		a.index = make(map[string]int)
	}
	if i, ok := a.index[id]; ok {
		a.entries[i].Role = role
		a.entries[i].Confidence = confidence
		return
	}
	a.index[id] = len(a.entries)
	a.entries = append(a.entries, RoleEntry{ID: id, Role: role, Confidence: confidence})
}

// Get returns the entry for an id
func (a *RoleAssignment) Get(id string) (RoleEntry, bool) {
	if a == nil {
		return RoleEntry{}, false
	}
	i, ok := a.index[id]
	if !ok {
		return RoleEntry{}, false
	}
	return a.entries[i], true
}

// Len returns the number of distinct ids
func (a *RoleAssignment) Len() int {
	if a == nil {
		return 0
	}
	return len(a.entries)
}

// Entries returns a copy of the entries in order
func (a *RoleAssignment) Entries() []RoleEntry {
	if a == nil {
		return nil
	}
	return append([]RoleEntry(nil), a.entries...)
}

// Roles returns the plain id → role mapping
func (a *RoleAssignment) Roles() map[string]Role {
	roles := make(map[string]Role, a.Len())
	if a == nil {
		return roles
	}
	for _, e := range a.entries {
		roles[e.ID] = e.Role
	}
	return roles
}

// Agreement is the outcome of comparing a predicted assignment with gold
type Agreement struct {
	Score     float64 `json:"score"`     // Harmonic mean of precision and recall
	Precision float64 `json:"precision"` // Matches / predicted
	Recall    float64 `json:"recall"`    // Matches / gold
	Matches   int     `json:"matches"`   // Ids whose predicted role equals the gold role
	Predicted int     `json:"predicted"` // Distinct predicted ids
	Gold      int     `json:"gold"`      // Distinct gold ids
}
