// Package fixerr holds the typed failures surfaced by fixture generation.
package fixerr

import (
	"errors"
	"fmt"
)

// Sentinels matched by errors.Is for every typed failure below.
var (
	ErrSchema                  = errors.New("seedgraph: schema error")
	ErrRecursionLimit          = errors.New("seedgraph: recursion limit reached")
	ErrUniquenessExhausted     = errors.New("seedgraph: uniqueness exhausted")
	ErrAssignmentNotRegistered = errors.New("seedgraph: key assignment not registered")
)

// SchemaError reports a malformed or unknown entity, column or foreign key reference.
type SchemaError struct {
	Entity string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("seedgraph: schema: %s", e.Reason)
	}
	return fmt.Sprintf("seedgraph: schema: %s: %s", e.Entity, e.Reason)
}

// Is reports whether target is ErrSchema.
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// NewSchemaError formats a SchemaError for entity.
func NewSchemaError(entity, format string, args ...any) *SchemaError {
	return &SchemaError{Entity: entity, Reason: fmt.Sprintf(format, args...)}
}

// RecursionLimitError reports a principal chain deeper than the configured bound.
type RecursionLimitError struct {
	Entity string
	Depth  int
	Limit  int
}

func (e *RecursionLimitError) Error() string {
	return fmt.Sprintf("seedgraph: cannot resolve principal %s at depth %d (limit %d); pre-seed base entities or raise the limit",
		e.Entity, e.Depth, e.Limit)
}

// Is reports whether target is ErrRecursionLimit.
func (e *RecursionLimitError) Is(target error) bool { return target == ErrRecursionLimit }

// UniquenessExhaustedError reports that no unused composite key tuple could be found.
type UniquenessExhaustedError struct {
	Entity string
	Draws  int
}

func (e *UniquenessExhaustedError) Error() string {
	return fmt.Sprintf("seedgraph: no unused composite key left for %s after %d draws", e.Entity, e.Draws)
}

// Is reports whether target is ErrUniquenessExhausted.
func (e *UniquenessExhaustedError) Is(target error) bool { return target == ErrUniquenessExhausted }

// AssignmentNotRegisteredError reports generation of an entity without a registered key strategy.
type AssignmentNotRegisteredError struct {
	Entity string
}

func (e *AssignmentNotRegisteredError) Error() string {
	return fmt.Sprintf("seedgraph: no key assignment registered for %s", e.Entity)
}

// Is reports whether target is ErrAssignmentNotRegistered.
func (e *AssignmentNotRegisteredError) Is(target error) bool {
	return target == ErrAssignmentNotRegistered
}

// IsSchema reports whether err is, or wraps, a SchemaError.
func IsSchema(err error) bool { return errors.Is(err, ErrSchema) }

// IsRecursionLimit reports whether err is, or wraps, a RecursionLimitError.
func IsRecursionLimit(err error) bool { return errors.Is(err, ErrRecursionLimit) }

// IsUniquenessExhausted reports whether err is, or wraps, a UniquenessExhaustedError.
func IsUniquenessExhausted(err error) bool { return errors.Is(err, ErrUniquenessExhausted) }

// IsAssignmentNotRegistered reports whether err is, or wraps, an AssignmentNotRegisteredError.
func IsAssignmentNotRegistered(err error) bool { return errors.Is(err, ErrAssignmentNotRegistered) }
