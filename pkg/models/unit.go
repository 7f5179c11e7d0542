// Package models defines the shared data types for the refinement pipeline.
package models

import "time"

// UnitState represents the lifecycle state of a task unit. Units are
// never deleted; they only move to a terminal state.
type UnitState string

const (
	// UnitActive indicates the unit still has phases to run.
	UnitActive UnitState = "active"
	// UnitSucceeded indicates all phases completed for the unit.
	UnitSucceeded UnitState = "succeeded"
	// UnitFailed indicates a phase exhausted its retries or failed fatally.
	UnitFailed UnitState = "failed"
	// UnitSkipped indicates the unit was excluded from the run.
	UnitSkipped UnitState = "skipped"
)

// Valid returns true if the state is a known value.
func (s UnitState) Valid() bool {
	switch s {
	case UnitActive, UnitSucceeded, UnitFailed, UnitSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true if the unit has reached an end state.
func (s UnitState) Terminal() bool {
	return s == UnitSucceeded || s == UnitFailed || s == UnitSkipped
}

// TaskUnit is one subject class plus its test suite moving through the
// pipeline. Only the orchestrator mutates a TaskUnit after creation.
type TaskUnit struct {
	// ID is the unique identifier for this unit.
	ID string `json:"id"`
	// Project is the name of the benchmark project the class belongs to.
	Project string `json:"project"`
	// ClassName is the fully qualified name of the class under test.
	ClassName string `json:"class_name"`
	// TargetJar is the path to the compiled subject JAR.
	TargetJar string `json:"target_jar"`
	// SourceDir is the path to the subject's source tree, if available.
	SourceDir string `json:"source_dir,omitempty"`
	// CurrentPhase is the phase the unit is in or about to enter.
	CurrentPhase Phase `json:"current_phase"`
	// State is the lifecycle state of the unit.
	State UnitState `json:"state"`
	// RetryCount is the number of retries consumed by the current phase.
	RetryCount int `json:"retry_count,omitempty"`
	// LastError holds the most recent failure message, if any.
	LastError string `json:"last_error,omitempty"`
	// CreatedAt is when the unit was added to the run.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the unit reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ArtifactRef points at the output of one phase for one unit, typically
// a file or directory under the run's artifact root.
type ArtifactRef struct {
	// UnitID is the owning unit.
	UnitID string `json:"unit_id"`
	// Phase is the phase that produced the artifact.
	Phase Phase `json:"phase"`
	// Path is the filesystem location of the artifact.
	Path string `json:"path"`
}
