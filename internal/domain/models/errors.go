package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrVersionNotFound is returned when a stored document version does not exist.
	ErrVersionNotFound = errors.New("conditions version not found")
	// ErrStoreBusy is returned when another writer holds the store lock.
	ErrStoreBusy = errors.New("conditions store busy")
	// ErrPairIndex is returned when a pair index is out of range.
	ErrPairIndex = errors.New("pair index out of range")
	// ErrDuplicateTick is returned when a closed candle was already evaluated.
	ErrDuplicateTick = errors.New("duplicate closed-candle snapshot")
)

// SchemaIssue is a single malformed field.
type SchemaIssue struct {
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

// SchemaError reports a document that failed structural or range checks.
// A document carrying a SchemaError is never made current.
type SchemaError struct {
	Issues []SchemaIssue
}

func NewSchemaError(field, reason string) *SchemaError {
	return &SchemaError{Issues: []SchemaIssue{{Field: field, Reason: reason}}}
}

func (e *SchemaError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		if is.Field == "" {
			parts = append(parts, is.Reason)
			continue
		}
		parts = append(parts, is.Field+": "+is.Reason)
	}
	return "invalid conditions: " + strings.Join(parts, "; ")
}

// Add appends an issue.
func (e *SchemaError) Add(field, reason string) {
	e.Issues = append(e.Issues, SchemaIssue{Field: field, Reason: reason})
}

// Prefix qualifies every issue field with p.
func (e *SchemaError) Prefix(p string) *SchemaError {
	for i, is := range e.Issues {
		if is.Field == "" {
			e.Issues[i].Field = p
			continue
		}
		if !strings.HasPrefix(is.Field, p) {
			e.Issues[i].Field = p + "." + is.Field
		}
	}
	return e
}

// AsSchemaError unwraps err to a *SchemaError.
func AsSchemaError(err error) (*SchemaError, bool) {
	var se *SchemaError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// PreconditionError means a fast-track check needed a snapshot metric that
// was not supplied.
type PreconditionError struct {
	Metric string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("snapshot metric %q missing", e.Metric)
}
