package duplicator

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("duplicator: entity not found")
	ErrNoSelection     = errors.New("duplicator: no target selected")
	ErrStorableMissing = errors.New("duplicator: storable missing")
	ErrNoPending       = errors.New("duplicator: registry returned no pending creation")
	ErrClosed          = errors.New("duplicator: closed")
)

// EntityResolutionError reports a failed creation or post-creation lookup.
// Reconcile aborts before positioning when it returns one.
type EntityResolutionError struct {
	Op       string
	TargetID string
	Type     string
	Err      error
}

func (e *EntityResolutionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("duplicator: %s %q (type %q): %v", e.Op, e.TargetID, e.Type, e.Err)
}

func (e *EntityResolutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ReplayError reports a replay rule that could not be applied.
type ReplayError struct {
	Rule       string
	StorableID string
	Err        error
}

func (e *ReplayError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("duplicator: replay %s on %q: %v", e.Rule, e.StorableID, e.Err)
}

func (e *ReplayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
