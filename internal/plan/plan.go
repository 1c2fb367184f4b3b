// Package plan maps a role-annotated bundle onto search: hard-filter roles
// become field filters, every other entity becomes a keyword.
package plan

import (
	"github.com/ppiankov/entrole/internal/model"
)

// Search field names used by the document index
const (
	FieldPublishAgent = "publishAgent"
	FieldAuthor       = "author"
	FieldPublishDate  = "publishDate"
)

// Keyword is a soft search term with the role that made it one
type Keyword struct {
	Text string     `json:"text"`
	Role model.Role `json:"role,omitempty"`
	Kind string     `json:"kind"` // enterprise, time, person
}

// Plan is the search-facing view of a classified query
type Plan struct {
	Query    string              `json:"query"`
	Filters  map[string][]string `json:"filters"`
	Keywords []Keyword           `json:"keywords"`
}

// filterFields maps each hard-filter role onto its search field
var filterFields = map[model.Role]string{
	model.RolePublisher:  FieldPublishAgent,
	model.RoleAuthor:     FieldAuthor,
	model.RoleFilterTime: FieldPublishDate,
}

// Build derives a plan. Entities whose role is a hard filter become field
// filters; the rest, including entities without a role, are keywords.
func Build(query string, b *model.EntityBundle) *Plan {
	p := &Plan{
		Query:    query,
		Filters:  make(map[string][]string),
		Keywords: []Keyword{},
	}
	if b == nil {
		return p
	}

	for _, e := range b.Enterprises {
		p.add(e.Name, e.Role, "enterprise")
	}
	for _, t := range b.Times {
		p.add(t.Raw, t.Role, "time")
	}
	for _, person := range b.Persons {
		p.add(person.Name, person.Role, "person")
	}
	return p
}

func (p *Plan) add(text string, role model.Role, kind string) {
	if field, ok := filterFields[role]; ok && role.IsHardFilter() {
		p.addFilter(field, text)
		return
	}
	p.Keywords = append(p.Keywords, Keyword{Text: text, Role: role, Kind: kind})
}

// HasFilters reports whether any hard filter applies
func (p *Plan) HasFilters() bool {
	return len(p.Filters) > 0
}

// KeywordTexts returns the keyword texts in order
func (p *Plan) KeywordTexts() []string {
	texts := make([]string, 0, len(p.Keywords))
	for _, k := range p.Keywords {
		texts = append(texts, k.Text)
	}
	return texts
}

func (p *Plan) addFilter(field, value string) {
	for _, v := range p.Filters[field] {
		if v == value {
			return
		}
	}
	p.Filters[field] = append(p.Filters[field], value)
}
