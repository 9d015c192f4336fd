package rules

import (
	"encoding/json"
	"fmt"
	"strings"

	"trackline/internal/domain"
)

// Conditions is a sparse conjunctive predicate over issue attributes.
// A nil field places no constraint.
type Conditions struct {
	Status   *string `json:"status,omitempty"`
	Priority *string `json:"priority,omitempty"`
	Type     *string `json:"type,omitempty"`
}

// ParseConditions decodes a conditions document. Empty, "null" and "{}" yield
// an empty set. Keys outside status, priority and type are ignored; a
// non-string value for a known key is an error.
func ParseConditions(doc string) (Conditions, error) {
	var c Conditions
	doc = strings.TrimSpace(doc)
	if doc == "" || doc == "null" {
		return c, nil
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		return c, fmt.Errorf("parse conditions: %w", err)
	}
	for key, dst := range map[string]**string{"status": &c.Status, "priority": &c.Priority, "type": &c.Type} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return Conditions{}, fmt.Errorf("parse conditions: %s must be a string", key)
		}
		*dst = &s
	}
	return c, nil
}

func (c Conditions) Empty() bool {
	return c.Status == nil && c.Priority == nil && c.Type == nil
}

// Match reports whether every present key equals the issue's attribute.
func (c Conditions) Match(is domain.Issue) bool {
	if c.Status != nil && *c.Status != string(is.Status) {
		return false
	}
	if c.Priority != nil && *c.Priority != string(is.Priority) {
		return false
	}
	if c.Type != nil && *c.Type != string(is.Type) {
		return false
	}
	return true
}

// Validate checks that present values name known enumeration members.
func (c Conditions) Validate() error {
	if c.Status != nil && !domain.IssueStatus(*c.Status).Valid() {
		return fmt.Errorf("unknown status %q", *c.Status)
	}
	if c.Priority != nil && !domain.IssuePriority(*c.Priority).Valid() {
		return fmt.Errorf("unknown priority %q", *c.Priority)
	}
	if c.Type != nil && !domain.IssueType(*c.Type).Valid() {
		return fmt.Errorf("unknown type %q", *c.Type)
	}
	return nil
}

// matchesConditions is fail-closed: a document that does not parse never matches.
func matchesConditions(doc string, is domain.Issue) (bool, error) {
	c, err := ParseConditions(doc)
	if err != nil {
		return false, err
	}
	return c.Match(is), nil
}
