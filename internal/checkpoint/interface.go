package checkpoint

import (
	"time"

	"github.com/refinelab/refinery/pkg/models"
)

// PhaseRecord is one completed attempt of a phase for a unit. Records
// are immutable once written; retries append a new record with a
// higher attempt number.
type PhaseRecord struct {
	ID          int64              `json:"id"`
	UnitID      string             `json:"unit_id"`
	Phase       models.Phase       `json:"phase"`
	Attempt     int                `json:"attempt"`
	Status      models.PhaseStatus `json:"status"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	ArtifactRef string             `json:"artifact_ref,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// Summary aggregates record counts for progress reporting.
type Summary struct {
	TotalUnits     int                      `json:"total_units"`
	UnitsByState   map[models.UnitState]int `json:"units_by_state"`
	PhaseSucceeded map[models.Phase]int     `json:"phase_succeeded"`
	PhaseFailed    map[models.Phase]int     `json:"phase_failed"`
}

// Store is the persistence surface the orchestrator resumes from.
type Store interface {
	// Unit lifecycle.
	CreateUnit(u *models.TaskUnit) error
	GetUnit(id string) (*models.TaskUnit, error)
	UpdateUnit(u *models.TaskUnit) error
	ListUnits() ([]*models.TaskUnit, error)
	ListUnitsByState(state models.UnitState) ([]*models.TaskUnit, error)

	// Phase records (append-only).
	RecordAttempt(rec *PhaseRecord) error
	StatusOf(unitID string, phase models.Phase) (*PhaseRecord, error)
	HasSucceeded(unitID string, phase models.Phase) (bool, error)
	NextAttempt(unitID string, phase models.Phase) (int, error)
	ListRecords(unitID string) ([]*PhaseRecord, error)

	Summarize() (*Summary, error)
}

var _ Store = (*DB)(nil)
