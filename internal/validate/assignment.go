package validate

import (
	"fmt"

	"github.com/ppiankov/entrole/internal/model"
)

// DiagnosticKind names a class of assignment problem
type DiagnosticKind string

const (
	UnknownRole DiagnosticKind = "unknown_role" // Role outside the taxonomy
	WrongFamily DiagnosticKind = "wrong_family" // e.g. a time entity tagged subject
	UnknownID   DiagnosticKind = "unknown_id"   // Id not present in the bundle
	Unassigned  DiagnosticKind = "unassigned"   // Bundle id with no role
)

// Diagnostic describes one mismatch between an assignment and its bundle
type Diagnostic struct {
	Kind DiagnosticKind `json:"kind"`
	ID   string         `json:"id"`
	Role model.Role     `json:"role,omitempty"`
}

func (d Diagnostic) String() string {
	if d.Role == "" {
		return fmt.Sprintf("%s: %s", d.Kind, d.ID)
	}
	return fmt.Sprintf("%s: %s-%s", d.Kind, d.ID, d.Role)
}

// CheckAssignment compares a decoded assignment with the bundle it was
// produced for. Model output cannot be verified locally, so the result is
// informational and the assignment is never modified.
func CheckAssignment(bundle *model.EntityBundle, a *model.RoleAssignment) []Diagnostic {
	var diags []Diagnostic

	for _, e := range a.Entries() {
		family, known := bundle.FamilyOf(e.ID)
		switch {
		case !known:
			diags = append(diags, Diagnostic{Kind: UnknownID, ID: e.ID, Role: e.Role})
		case !e.Role.Valid():
			diags = append(diags, Diagnostic{Kind: UnknownRole, ID: e.ID, Role: e.Role})
		case e.Role.Family() != family:
			diags = append(diags, Diagnostic{Kind: WrongFamily, ID: e.ID, Role: e.Role})
		}
	}

	for _, id := range bundle.IDs() {
		if _, ok := a.Get(id); !ok {
			diags = append(diags, Diagnostic{Kind: Unassigned, ID: id})
		}
	}

	return diags
}
