// Package orchestrator drives task units through the refinement
// pipeline: a worker pool takes each unit phase by phase, records
// every attempt in the checkpoint store, and isolates per-unit
// failures from the rest of the run.
package orchestrator

import (
	"time"

	"github.com/refinelab/refinery/pkg/models"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventUnitStarted indicates a worker picked up a unit.
	EventUnitStarted EventType = "unit_started"
	// EventUnitCompleted indicates a unit finished every phase.
	EventUnitCompleted EventType = "unit_completed"
	// EventUnitFailed indicates a unit failed and will not continue.
	EventUnitFailed EventType = "unit_failed"
	// EventUnitSkipped indicates a unit was already complete on resume.
	EventUnitSkipped EventType = "unit_skipped"
	// EventPhaseStarted indicates a phase attempt has begun.
	EventPhaseStarted EventType = "phase_started"
	// EventPhaseCompleted indicates a phase attempt succeeded.
	EventPhaseCompleted EventType = "phase_completed"
	// EventPhaseSkipped indicates a phase already succeeded in an
	// earlier run.
	EventPhaseSkipped EventType = "phase_skipped"
	// EventPhaseRetried indicates a transient failure will be retried.
	EventPhaseRetried EventType = "phase_retried"
	// EventRunDone indicates the whole run has finished.
	EventRunDone EventType = "run_done"
)

// Event is emitted by the orchestrator as units move through phases.
// Subscribers (the TUI, the status command) read these to track
// progress.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// UnitID is the ID of the related unit, if applicable.
	UnitID string
	// ClassName is the class under test, if applicable.
	ClassName string
	// Phase is the related pipeline phase, if applicable.
	Phase models.Phase
	// Attempt is the attempt number for phase events.
	Attempt int
	// Message provides additional context about the event.
	Message string
	// Err contains error details for failure events.
	Err error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
