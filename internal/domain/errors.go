package domain

import (
	"errors"
	"sort"
	"strings"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound      = errors.New("domain: not found")
	ErrConflict      = errors.New("domain: conflict")
	ErrUnauthorized  = errors.New("domain: unauthorized")
	ErrForbidden     = errors.New("domain: forbidden")
	ErrInvalidStatus = errors.New("domain: invalid status")
	ErrIssueLocked   = errors.New("domain: issue has corrective actions or belongs to a previous revision")
)

// ValidationErrors maps a field name to a human-readable message. Every failing
// field is reported; validation never stops at the first error.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Fields returns the failing field names in sorted order.
func (v ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
