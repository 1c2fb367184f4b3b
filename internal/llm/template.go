package llm

import (
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/entrole/internal/model"
	"gopkg.in/yaml.v3"
)

// Template is a prompt with {name} placeholders. Literal braces are written
// as {{ and }}.
type Template struct {
	Name string
	Text string
}

// NewTemplate creates a named template
func NewTemplate(name, text string) *Template {
	return &Template{Name: name, Text: text}
}

// Format substitutes vars into the template. Placeholders without a value
// render as [name]; formatting never fails.
func (t *Template) Format(vars map[string]string) string {
	var out strings.Builder
	out.Grow(len(t.Text))

	text := t.Text
	for len(text) > 0 {
		i := strings.IndexAny(text, "{}")
		if i < 0 {
			out.WriteString(text)
			break
		}
		out.WriteString(text[:i])
		text = text[i:]

		if strings.HasPrefix(text, "{{") || strings.HasPrefix(text, "}}") {
			out.WriteByte(text[0])
			text = text[2:]
			continue
		}
		if text[0] == '}' {
			out.WriteByte('}')
			text = text[1:]
			continue
		}

		end := strings.IndexAny(text[1:], "{}")
		if end < 0 || text[1+end] != '}' {
			// Unterminated placeholder, keep the brace as text
			out.WriteByte('{')
			text = text[1:]
			continue
		}

		name := fieldName(text[1 : 1+end])
		if v, ok := vars[name]; ok {
			out.WriteString(v)
		} else {
			out.WriteString("[" + name + "]")
		}
		text = text[end+2:]
	}
	return out.String()
}

// Placeholders lists the distinct placeholder names in order of appearance
func (t *Template) Placeholders() []string {
	seen := make(map[string]bool)
	var names []string

	text := t.Text
	for {
		i := strings.IndexByte(text, '{')
		if i < 0 {
			return names
		}
		if strings.HasPrefix(text[i:], "{{") {
			text = text[i+2:]
			continue
		}
		end := strings.IndexAny(text[i+1:], "{}")
		if end < 0 {
			return names
		}
		if text[i+1+end] == '}' {
			name := fieldName(text[i+1 : i+1+end])
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
		text = text[i+1+end:]
	}
}

// fieldName strips conversion and format specs: {name!r:>10} → name
func fieldName(field string) string {
	if i := strings.IndexAny(field, "!:"); i >= 0 {
		field = field[:i]
	}
	return strings.TrimSpace(field)
}

// FallbackVars returns values for placeholder names that rewritten prompts
// commonly introduce beyond question, entities and pre_result
func FallbackVars(goal string) map[string]string {
	if goal == "" {
		goal = "Identify entity roles"
	}

	descriptions := map[model.Role]string{
		model.RoleSubject:           "查询主体",
		model.RolePublisher:         "发布机构",
		model.RoleAuthor:            "作者",
		model.RoleContentDescriptor: "内容描述时间",
		model.RoleFilterTime:        "过滤时间",
		model.RolePredictionTime:    "预测时间",
		model.RoleContext:           "背景信息",
	}
	var roles []string
	for _, r := range append(model.PartyRoles(), model.TimeRoles()...) {
		roles = append(roles, fmt.Sprintf("%s (%s)", r, descriptions[r]))
	}
	validRoles := strings.Join(roles, ", ")

	return map[string]string{
		"valid_roles":     validRoles,
		"roles":           validRoles,
		"role_list":       validRoles,
		"available_roles": validRoles,
		"task":            goal,
		"goal":            goal,
		"instructions":    "Assign exactly one role to each entity with a confidence score.",
		"format":          "EntityID-Role-Confidence | EntityID-Role-Confidence",
		"example":         "USCF-subject-0.9 | KJOC-filter_time-0.8",
	}
}

// MergeVars overlays the given maps left to right
func MergeVars(layers ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

// TemplateFile is the on-disk form of prompt overrides
type TemplateFile struct {
	Goal       string `yaml:"goal,omitempty"`
	Generation string `yaml:"generation,omitempty"`
	Correction string `yaml:"correction,omitempty"`
	Judge      string `yaml:"judge,omitempty"`
}

// LoadTemplateFile reads prompt overrides from a YAML file
func LoadTemplateFile(path string) (*TemplateFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}

	var tf TemplateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &tf, nil
}
