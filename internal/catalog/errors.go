package catalog

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested entity or index entry does not
// exist. It is never retried; the caller asked for something that is not
// there.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed input. It is raised before the first
// store call, so a validation failure never leaves partial state behind.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PartialError reports that a multi-step catalog operation failed after at
// least one earlier step had already committed. The store has no multi-key
// rollback, so the completed steps' effects remain in place; Step names the
// one that failed.
type PartialError struct {
	Op   string
	Step string
	Err  error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("%s: step %s failed after earlier steps committed: %s", e.Op, e.Step, e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}
