package models

import (
	"errors"
	"fmt"
)

var (
	ErrNothingSelected   = errors.New("nothing selected")
	ErrReportNotFound    = errors.New("report not found")
	ErrArticleNotFound   = errors.New("article not found")
	ErrNotFiltered       = errors.New("scored articles have not been filtered")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmptyReport       = errors.New("report includes no articles")
)

// ConfigurationError rejects an invalid configuration write.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// CollaboratorError wraps a failure of an external collaborator
// (collector, scoring oracle, report generator, publisher).
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// PreconditionError rejects an action whose preconditions do not hold.
// No state is mutated when it is returned.
type PreconditionError struct {
	Op  string
	Err error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }
