// Package codec reads and writes the compact role wire format used between
// the classifier and the language model:
//
//	USCF-subject-9 | KJOC-filter_time-8
//
// Entries are joined by "|" and each entry is id-role-confidence joined by "-".
package codec

import (
	"strings"

	"github.com/ppiankov/entrole/internal/model"
)

const (
	entrySep = "|"
	fieldSep = "-"
)

// Decode parses a wire string. Entries with fewer than two fields, or with an
// empty id or role, are skipped. When an id repeats, the last entry wins and
// keeps the position of the first.
func Decode(s string) *model.RoleAssignment {
	a := model.NewRoleAssignment()
	for _, chunk := range strings.Split(s, entrySep) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}

		parts := strings.SplitN(chunk, fieldSep, 3)
		if len(parts) < 2 {
			continue
		}

		id := strings.TrimSpace(parts[0])
		role := strings.TrimSpace(parts[1])
		if id == "" || role == "" {
			continue
		}

		var confidence string
		if len(parts) == 3 {
			confidence = strings.TrimSpace(parts[2])
		}
		a.Set(id, model.Role(role), model.Confidence(confidence))
	}
	return a
}

// Encode writes an assignment in wire form
func Encode(a *model.RoleAssignment) string {
	entries := a.Entries()
	chunks := make([]string, 0, len(entries))
	for _, e := range entries {
		chunks = append(chunks, e.ID+fieldSep+string(e.Role)+fieldSep+string(e.Confidence))
	}
	return strings.Join(chunks, entrySep)
}

// Merge writes roles from a onto the matching records of b in place. Lists are
// visited enterprise, time, person; an id is consumed by the first record that
// carries it, so a colliding id in a later list keeps its previous role.
// Records whose id is not in a are left untouched.
func Merge(b *model.EntityBundle, a *model.RoleAssignment) {
	if b == nil || a.Len() == 0 {
		return
	}

	consumed := make(map[string]bool, a.Len())
	take := func(id string) (model.RoleEntry, bool) {
		if consumed[id] {
			return model.RoleEntry{}, false
		}
		e, ok := a.Get(id)
		if !ok {
			return model.RoleEntry{}, false
		}
		consumed[id] = true
		return e, true
	}

	for i := range b.Enterprises {
		if e, ok := take(b.Enterprises[i].ID); ok {
			b.Enterprises[i].Role, b.Enterprises[i].Confidence = e.Role, e.Confidence
		}
	}
	for i := range b.Times {
		if e, ok := take(b.Times[i].ID); ok {
			b.Times[i].Role, b.Times[i].Confidence = e.Role, e.Confidence
		}
	}
	for i := range b.Persons {
		if e, ok := take(b.Persons[i].ID); ok {
			b.Persons[i].Role, b.Persons[i].Confidence = e.Role, e.Confidence
		}
	}
}

// ExtractRoles collects the assignment carried by an annotated bundle. Records
// without an id or a role are ignored.
func ExtractRoles(b *model.EntityBundle) *model.RoleAssignment {
	a := model.NewRoleAssignment()
	if b == nil {
		return a
	}
	for _, e := range b.Enterprises {
		if e.ID != "" && e.Role != "" {
			a.Set(e.ID, e.Role, e.Confidence)
		}
	}
	for _, t := range b.Times {
		if t.ID != "" && t.Role != "" {
			a.Set(t.ID, t.Role, t.Confidence)
		}
	}
	for _, p := range b.Persons {
		if p.ID != "" && p.Role != "" {
			a.Set(p.ID, p.Role, p.Confidence)
		}
	}
	return a
}

// EncodeBundle writes the roles carried by an annotated bundle in wire form
func EncodeBundle(b *model.EntityBundle) string {
	return Encode(ExtractRoles(b))
}
