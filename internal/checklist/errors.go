package checklist

import (
	"errors"
	"fmt"
)

var (
	// ErrSchema matches every *SchemaError via errors.Is.
	ErrSchema   = errors.New("checklist schema error")
	ErrNotFound = errors.New("checklist not found")
)

// SchemaError reports a missing or invalid field in a checklist document.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("checklist schema: %s: %s", e.Field, e.Reason)
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}
