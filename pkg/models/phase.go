package models

// Phase is one stage of the refinement pipeline. Phases are strictly
// ordered per unit: a later phase consumes the prior phase's artifacts.
type Phase string

const (
	// PhaseBaseline generates the baseline test suite for a unit.
	PhaseBaseline Phase = "baseline"
	// PhaseRefinement rewrites the baseline tests via policy optimization.
	PhaseRefinement Phase = "refinement"
	// PhaseVerification checks that refined tests compile and preserve oracles.
	PhaseVerification Phase = "verification"
	// PhaseEvaluation measures coverage, mutation score, and maintainability.
	PhaseEvaluation Phase = "evaluation"
	// PhaseAnalysis aggregates per-unit results into a summary report.
	PhaseAnalysis Phase = "analysis"
)

// Phases lists all pipeline phases in execution order.
var Phases = []Phase{
	PhaseBaseline,
	PhaseRefinement,
	PhaseVerification,
	PhaseEvaluation,
	PhaseAnalysis,
}

// Valid returns true if the phase is a known value.
func (p Phase) Valid() bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

// Index returns the zero-based position of the phase in pipeline order,
// or -1 for an unknown phase.
func (p Phase) Index() int {
	for i, known := range Phases {
		if p == known {
			return i
		}
	}
	return -1
}

// Next returns the phase that follows this one, or "" if this is the
// last phase or the phase is unknown.
func (p Phase) Next() Phase {
	idx := p.Index()
	if idx < 0 || idx == len(Phases)-1 {
		return ""
	}
	return Phases[idx+1]
}

// PhaseStatus represents the outcome of one phase attempt for a unit.
type PhaseStatus string

const (
	// StatusPending indicates the phase has not started.
	StatusPending PhaseStatus = "pending"
	// StatusRunning indicates the phase is in progress.
	StatusRunning PhaseStatus = "running"
	// StatusSucceeded indicates the phase completed successfully.
	StatusSucceeded PhaseStatus = "succeeded"
	// StatusFailed indicates the phase failed.
	StatusFailed PhaseStatus = "failed"
	// StatusSkipped indicates the phase was explicitly skipped.
	StatusSkipped PhaseStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s PhaseStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is an end state for an attempt.
func (s PhaseStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusSkipped
}
