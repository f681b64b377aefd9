// Package policy implements the declarative policy evaluation core:
// wire types for policy documents, wildcard pattern matching with
// variable substitution, condition evaluation, and the deny-overrides
// aggregation that produces the final authorization decision.
package policy

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Effect is the outcome a statement declares when it applies.
type Effect string

const (
	EffectAllow Effect = "Allow"
	EffectDeny  Effect = "Deny"
)

// Valid reports whether the effect is one of the two recognized values.
func (e Effect) Valid() bool {
	return e == EffectAllow || e == EffectDeny
}

// StringList is a JSON value that may be encoded as a single string or
// as an array of strings. It remembers which form it was decoded from
// so documents round-trip byte-identically.
type StringList struct {
	values []string
	single bool
}

// NewStringList builds a StringList from explicit values. A single
// value marshals back to a bare string, matching the common authoring
// style.
func NewStringList(values ...string) StringList {
	return StringList{values: values, single: len(values) == 1}
}

// Values returns the normalized slice form.
func (l StringList) Values() []string {
	return l.values
}

// UnmarshalJSON accepts either "x" or ["x", "y"].
func (l *StringList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		l.values = []string{s}
		l.single = true
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return errors.New("policy: expected string or array of strings")
	}
	l.values = many
	l.single = false
	return nil
}

// MarshalJSON re-emits the original form.
func (l StringList) MarshalJSON() ([]byte, error) {
	if l.single && len(l.values) == 1 {
		return json.Marshal(l.values[0])
	}
	return json.Marshal(l.values)
}

// Condition maps an operator name to the context keys it constrains.
type Condition map[string]map[string]string

// Statement is one Effect+Action+Resource(+Condition) rule.
type Statement struct {
	Effect    Effect     `json:"Effect"`
	Action    StringList `json:"Action"`
	Resource  StringList `json:"Resource"`
	Condition Condition  `json:"Condition,omitempty"`
}

// Document is a versioned collection of statements. This is the only
// persisted shape of a policy and must round-trip exactly.
type Document struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// ErrInvalidDocument wraps every parse and validation failure so
// callers can map them to a client error without string matching.
var ErrInvalidDocument = errors.New("invalid policy document")

// ParseDocument decodes and validates a policy document. Malformed
// documents are rejected so they can never be persisted.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: decode: %v", ErrInvalidDocument, err)
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Validate enforces the structural invariants of a document: Version
// and a non-empty Statement list are required, every statement carries
// a recognized Effect and at least one Action and one Resource entry.
func (d Document) Validate() error {
	if d.Version == "" {
		return fmt.Errorf("%w: missing Version", ErrInvalidDocument)
	}
	if len(d.Statement) == 0 {
		return fmt.Errorf("%w: no statements", ErrInvalidDocument)
	}
	for i, stmt := range d.Statement {
		if !stmt.Effect.Valid() {
			return fmt.Errorf("%w: statement %d: effect %q is not Allow or Deny", ErrInvalidDocument, i, stmt.Effect)
		}
		if len(stmt.Action.Values()) == 0 {
			return fmt.Errorf("%w: statement %d: at least one Action is required", ErrInvalidDocument, i)
		}
		if len(stmt.Resource.Values()) == 0 {
			return fmt.Errorf("%w: statement %d: at least one Resource is required", ErrInvalidDocument, i)
		}
	}
	return nil
}
