package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Role is the query-relevant function an entity plays
type Role string

const (
	RoleSubject   Role = "subject"   // Query target
	RolePublisher Role = "publisher" // Issuing organization
	RoleAuthor    Role = "author"    // Document writer

	RoleContentDescriptor Role = "content_descriptor" // Describes the reporting period, not a filter
	RoleFilterTime        Role = "filter_time"        // Constrains document publish date
	RolePredictionTime    Role = "prediction_time"    // Future reference
	RoleContext           Role = "context"            // Vague relative window
)

// RoleFamily groups roles by the entity kind they apply to
type RoleFamily string

const (
	FamilyParty   RoleFamily = "party" // Enterprises and persons
	FamilyTime    RoleFamily = "time"
	FamilyUnknown RoleFamily = "unknown"
)

// PartyRoles returns the roles valid for enterprises and persons
func PartyRoles() []Role {
	return []Role{RoleSubject, RolePublisher, RoleAuthor}
}

// TimeRoles returns the roles valid for time expressions
func TimeRoles() []Role {
	return []Role{RoleContentDescriptor, RoleFilterTime, RolePredictionTime, RoleContext}
}

// Family reports which entity family the role belongs to
func (r Role) Family() RoleFamily {
	switch r {
	case RoleSubject, RolePublisher, RoleAuthor:
		return FamilyParty
	case RoleContentDescriptor, RoleFilterTime, RolePredictionTime, RoleContext:
		return FamilyTime
	default:
		return FamilyUnknown
	}
}

// Valid reports whether the role is part of the closed taxonomy
func (r Role) Valid() bool {
	return r.Family() != FamilyUnknown
}

// IsHardFilter reports whether downstream search treats the role as a filter
// rather than a keyword. publisher, author and filter_time are filters.
func (r Role) IsHardFilter() bool {
	switch r {
	case RolePublisher, RoleAuthor, RoleFilterTime:
		return true
	default:
		return false
	}
}

// Confidence is the advisory score attached to a role. Models emit it as an
// integer or decimal; the text is kept verbatim.
type Confidence string

// Float parses the confidence, returning false when it is not numeric
func (c Confidence) Float() (float64, bool) {
	f, err := strconv.ParseFloat(string(c), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// UnmarshalJSON accepts both JSON strings and numbers
func (c *Confidence) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Confidence(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = Confidence(n.String())
	return nil
}
