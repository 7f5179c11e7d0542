package checkpoint

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/refinelab/refinery/pkg/models"
)

// CreateUnit inserts a new task unit. The unit's CreatedAt is set if
// zero.
func (db *DB) CreateUnit(u *models.TaskUnit) error {
	if u.ID == "" {
		return fmt.Errorf("unit ID is required")
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	if u.State == "" {
		u.State = models.UnitActive
	}
	if u.CurrentPhase == "" {
		u.CurrentPhase = models.PhaseBaseline
	}

	var completedAt any
	if u.CompletedAt != nil {
		completedAt = formatTime(*u.CompletedAt)
	}

	_, err := db.Exec(`
		INSERT INTO units (id, project, class_name, target_jar, source_dir,
			current_phase, state, retry_count, last_error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Project, u.ClassName, u.TargetJar, u.SourceDir,
		string(u.CurrentPhase), string(u.State), u.RetryCount, u.LastError,
		formatTime(u.CreatedAt), completedAt)
	if err != nil {
		return fmt.Errorf("create unit %s: %w", u.ID, err)
	}
	return nil
}

// GetUnit retrieves a unit by ID. Returns nil without error when the
// unit does not exist.
func (db *DB) GetUnit(id string) (*models.TaskUnit, error) {
	row := db.QueryRow(`
		SELECT id, project, class_name, target_jar, source_dir,
			current_phase, state, retry_count, last_error, created_at, completed_at
		FROM units WHERE id = ?
	`, id)

	u, err := scanUnit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get unit %s: %w", id, err)
	}
	return u, nil
}

// UpdateUnit persists mutable unit fields: phase cursor, state,
// retry count, last error and completion time.
func (db *DB) UpdateUnit(u *models.TaskUnit) error {
	var completedAt any
	if u.CompletedAt != nil {
		completedAt = formatTime(*u.CompletedAt)
	}

	result, err := db.Exec(`
		UPDATE units
		SET current_phase = ?, state = ?, retry_count = ?, last_error = ?, completed_at = ?
		WHERE id = ?
	`, string(u.CurrentPhase), string(u.State), u.RetryCount, u.LastError, completedAt, u.ID)
	if err != nil {
		return fmt.Errorf("update unit %s: %w", u.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update unit %s: %w", u.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update unit %s: not found", u.ID)
	}
	return nil
}

// ListUnits returns all units ordered by creation time.
func (db *DB) ListUnits() ([]*models.TaskUnit, error) {
	return db.listUnits(`
		SELECT id, project, class_name, target_jar, source_dir,
			current_phase, state, retry_count, last_error, created_at, completed_at
		FROM units ORDER BY created_at, id
	`)
}

// ListUnitsByState returns units in the given state ordered by
// creation time.
func (db *DB) ListUnitsByState(state models.UnitState) ([]*models.TaskUnit, error) {
	return db.listUnits(`
		SELECT id, project, class_name, target_jar, source_dir,
			current_phase, state, retry_count, last_error, created_at, completed_at
		FROM units WHERE state = ? ORDER BY created_at, id
	`, string(state))
}

func (db *DB) listUnits(query string, args ...any) ([]*models.TaskUnit, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	var units []*models.TaskUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUnit(s scanner) (*models.TaskUnit, error) {
	var u models.TaskUnit
	var phase, state, createdAt string
	var completedAt sql.NullString

	err := s.Scan(&u.ID, &u.Project, &u.ClassName, &u.TargetJar, &u.SourceDir,
		&phase, &state, &u.RetryCount, &u.LastError, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}

	u.CurrentPhase = models.Phase(phase)
	u.State = models.UnitState(state)
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	u.CompletedAt = parseNullableTime(completedAt)
	return &u, nil
}

// RecordAttempt appends a completed phase attempt. The record is
// inserted whole in a single statement; an interrupted process
// therefore leaves either a complete record or none. The attempt
// number is assigned here if unset.
func (db *DB) RecordAttempt(rec *PhaseRecord) error {
	if rec.UnitID == "" {
		return fmt.Errorf("record requires a unit ID")
	}
	if !rec.Phase.Valid() {
		return fmt.Errorf("invalid phase %q", rec.Phase)
	}
	if !rec.Status.Valid() || !rec.Status.Terminal() {
		return fmt.Errorf("record status must be terminal, got %q", rec.Status)
	}

	if rec.Attempt == 0 {
		next, err := db.NextAttempt(rec.UnitID, rec.Phase)
		if err != nil {
			return err
		}
		rec.Attempt = next
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}

	result, err := db.Exec(`
		INSERT INTO phase_records (unit_id, phase, attempt, status,
			started_at, finished_at, artifact_ref, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.UnitID, string(rec.Phase), rec.Attempt, string(rec.Status),
		formatTime(rec.StartedAt), formatTime(rec.FinishedAt), rec.ArtifactRef, rec.Error)
	if err != nil {
		return fmt.Errorf("record attempt for %s/%s: %w", rec.UnitID, rec.Phase, err)
	}
	rec.ID, _ = result.LastInsertId()
	return nil
}

// StatusOf returns the most recent record for a unit's phase, or nil
// when the phase has never completed an attempt.
func (db *DB) StatusOf(unitID string, phase models.Phase) (*PhaseRecord, error) {
	row := db.QueryRow(`
		SELECT id, unit_id, phase, attempt, status, started_at, finished_at, artifact_ref, error
		FROM phase_records
		WHERE unit_id = ? AND phase = ?
		ORDER BY attempt DESC LIMIT 1
	`, unitID, string(phase))

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("status of %s/%s: %w", unitID, phase, err)
	}
	return rec, nil
}

// HasSucceeded reports whether any attempt of the phase succeeded.
// Success is permanent: later failed attempts do not revoke it.
func (db *DB) HasSucceeded(unitID string, phase models.Phase) (bool, error) {
	var n int
	row := db.QueryRow(`
		SELECT COUNT(*) FROM phase_records
		WHERE unit_id = ? AND phase = ? AND status = ?
	`, unitID, string(phase), string(models.StatusSucceeded))
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("check success of %s/%s: %w", unitID, phase, err)
	}
	return n > 0, nil
}

// NextAttempt returns the attempt number the next record should carry.
func (db *DB) NextAttempt(unitID string, phase models.Phase) (int, error) {
	var max int
	row := db.QueryRow(`
		SELECT COALESCE(MAX(attempt), 0) FROM phase_records
		WHERE unit_id = ? AND phase = ?
	`, unitID, string(phase))
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("next attempt for %s/%s: %w", unitID, phase, err)
	}
	return max + 1, nil
}

// ListRecords returns all records for a unit in phase order, then
// attempt order.
func (db *DB) ListRecords(unitID string) ([]*PhaseRecord, error) {
	rows, err := db.Query(`
		SELECT id, unit_id, phase, attempt, status, started_at, finished_at, artifact_ref, error
		FROM phase_records
		WHERE unit_id = ?
		ORDER BY id
	`, unitID)
	if err != nil {
		return nil, fmt.Errorf("list records for %s: %w", unitID, err)
	}
	defer rows.Close()

	var recs []*PhaseRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanRecord(s scanner) (*PhaseRecord, error) {
	var rec PhaseRecord
	var phase, status, startedAt, finishedAt string

	err := s.Scan(&rec.ID, &rec.UnitID, &phase, &rec.Attempt, &status,
		&startedAt, &finishedAt, &rec.ArtifactRef, &rec.Error)
	if err != nil {
		return nil, err
	}

	rec.Phase = models.Phase(phase)
	rec.Status = models.PhaseStatus(status)
	if rec.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if rec.FinishedAt, err = parseTime(finishedAt); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	return &rec, nil
}

// Summarize aggregates unit and record counts for progress display.
func (db *DB) Summarize() (*Summary, error) {
	s := &Summary{
		UnitsByState:   make(map[models.UnitState]int),
		PhaseSucceeded: make(map[models.Phase]int),
		PhaseFailed:    make(map[models.Phase]int),
	}

	rows, err := db.Query(`SELECT state, COUNT(*) FROM units GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("summarize units: %w", err)
	}
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan unit count: %w", err)
		}
		s.UnitsByState[models.UnitState(state)] = n
		s.TotalUnits += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Count distinct units per phase outcome, not raw attempts.
	rows, err = db.Query(`
		SELECT phase, status, COUNT(DISTINCT unit_id)
		FROM phase_records
		WHERE status IN (?, ?)
		GROUP BY phase, status
	`, string(models.StatusSucceeded), string(models.StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("summarize records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var phase, status string
		var n int
		if err := rows.Scan(&phase, &status, &n); err != nil {
			return nil, fmt.Errorf("scan record count: %w", err)
		}
		switch models.PhaseStatus(status) {
		case models.StatusSucceeded:
			s.PhaseSucceeded[models.Phase(phase)] = n
		case models.StatusFailed:
			s.PhaseFailed[models.Phase(phase)] = n
		}
	}
	return s, rows.Err()
}
