// Package phase defines the contract every pipeline phase implements
// and the error taxonomy the scheduler uses to decide between retrying,
// failing a unit, and aborting the run.
package phase

import (
	"context"
	"errors"
	"fmt"

	"github.com/refinelab/refinery/pkg/models"
)

// Outcome is what a successful phase attempt produced.
type Outcome struct {
	// ArtifactRef points at the primary artifact of the attempt,
	// typically a file path under the run directory.
	ArtifactRef string
	// Detail is a short human-readable summary for logs and status.
	Detail string
}

// Runner executes one phase for one unit. Implementations must be safe
// for concurrent calls on distinct units.
type Runner interface {
	Phase() models.Phase
	Run(ctx context.Context, unit *models.TaskUnit) (*Outcome, error)
}

// Classification tells the scheduler how to treat a phase failure.
type Classification int

const (
	// ClassFatal failures abort the whole run. This is the default for
	// unwrapped errors: infrastructure problems should stop everything
	// rather than silently fail unit after unit.
	ClassFatal Classification = iota
	// ClassTransient failures are retried with backoff up to the
	// configured attempt limit.
	ClassTransient
	// ClassRejected failures are deterministic for the unit: the unit
	// is marked failed and the run continues.
	ClassRejected
)

func (c Classification) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassRejected:
		return "rejected"
	default:
		return "fatal"
	}
}

// Error carries a failure classification alongside the cause.
type Error struct {
	Class Classification
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Class: ClassTransient, Err: err}
}

// Transientf is Transient with formatting.
func Transientf(format string, args ...any) error {
	return &Error{Class: ClassTransient, Err: fmt.Errorf(format, args...)}
}

// Reject wraps err as a deterministic per-unit failure.
func Reject(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Class: ClassRejected, Err: err}
}

// Rejectf is Reject with formatting.
func Rejectf(format string, args ...any) error {
	return &Error{Class: ClassRejected, Err: fmt.Errorf(format, args...)}
}

// Classify returns the classification of err. Unwrapped errors and
// context cancellation are fatal.
func Classify(err error) Classification {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ClassFatal
}
