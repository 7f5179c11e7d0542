package gspo

import (
	"fmt"
	"math"
)

// RecoveryAction is what the optimizer does when it detects a policy
// collapse. Whatever the action, training halts with a CollapseError;
// degenerate training is never silently continued.
type RecoveryAction string

const (
	// RecoverRollback restores the last reference-policy snapshot.
	RecoverRollback RecoveryAction = "rollback"
	// RecoverReduceLR halves the policy's learning rate.
	RecoverReduceLR RecoveryAction = "reduce_lr"
	// RecoverAbort takes no policy action; the run just stops.
	RecoverAbort RecoveryAction = "abort"
)

// Valid returns true if the action is a known value.
func (a RecoveryAction) Valid() bool {
	switch a {
	case RecoverRollback, RecoverReduceLR, RecoverAbort:
		return true
	default:
		return false
	}
}

// CollapseError signals a detected policy collapse. It is fatal for
// the refinement run and requires explicit operator action.
type CollapseError struct {
	// Step is the optimization step at which the collapse was flagged.
	Step int
	// Reason describes what tripped the detector.
	Reason string
	// Action is the recovery action that was applied before halting.
	Action RecoveryAction
}

func (e *CollapseError) Error() string {
	return fmt.Sprintf("policy collapse at step %d (%s); recovery action: %s", e.Step, e.Reason, e.Action)
}

// CollapseConfig tunes the collapse detector. Thresholds are fully
// configurable; the defaults here are starting points, not guarantees.
type CollapseConfig struct {
	// Window is how many recent steps the moving-average comparison
	// looks back over.
	Window int `mapstructure:"window"`
	// Fraction is the drop threshold: collapse when the moving mean
	// falls more than (1-Fraction) of the window best's magnitude
	// below that best. For a positive best this is the familiar
	// mean < Fraction*best test; the signal also fires when the
	// best itself is negative.
	Fraction float64 `mapstructure:"fraction"`
	// MinSteps suppresses detection until this many steps have run,
	// while the moving statistics are still warming up.
	MinSteps int `mapstructure:"min_steps"`
	// ClipSaturationFraction is the per-step share of candidates with
	// ratios at the clip boundary that counts as a saturated step.
	ClipSaturationFraction float64 `mapstructure:"clip_saturation_fraction"`
	// ClipSaturationSteps is how many consecutive saturated steps
	// trigger a collapse.
	ClipSaturationSteps int `mapstructure:"clip_saturation_steps"`
	// Action is the recovery action applied on detection.
	Action RecoveryAction `mapstructure:"action"`
}

// DefaultCollapseConfig returns the default detector tuning.
func DefaultCollapseConfig() CollapseConfig {
	return CollapseConfig{
		Window:                 10,
		Fraction:               0.5,
		MinSteps:               5,
		ClipSaturationFraction: 0.8,
		ClipSaturationSteps:    3,
		Action:                 RecoverAbort,
	}
}

// TrainingState carries the optimizer's per-run statistics. It is an
// explicit value passed into and returned from each optimization step,
// never a package-level singleton.
type TrainingState struct {
	// Epoch is the current training epoch.
	Epoch int
	// Step is the number of completed optimization steps.
	Step int
	// MovingMean is the exponentially weighted moving average reward.
	MovingMean float64
	// MovingVar is the exponentially weighted moving reward variance.
	MovingVar float64
	// RecentMeans holds the moving mean after each of the last
	// CollapseConfig.Window steps, oldest first.
	RecentMeans []float64
	// CollapseCount is how many collapses have been detected this run.
	CollapseCount int
	// ClipSaturatedSteps is the current streak of clip-saturated steps.
	ClipSaturatedSteps int
	// StepsSinceRefresh counts steps since the last reference snapshot.
	StepsSinceRefresh int
}

// NewTrainingState returns a zeroed state for the start of a run.
func NewTrainingState() TrainingState {
	return TrainingState{}
}

// movingAlpha is the EWMA smoothing factor for reward statistics.
const movingAlpha = 0.2

// dropEpsilon keeps the drop comparison from tripping on float noise
// when the window best is at or near zero.
const dropEpsilon = 1e-8

// observe folds one step's mean reward into the moving statistics and
// appends it to the recent-means window.
func (s TrainingState) observe(stepMean float64, window int) TrainingState {
	if s.Step == 0 {
		s.MovingMean = stepMean
		s.MovingVar = 0
	} else {
		delta := stepMean - s.MovingMean
		s.MovingMean += movingAlpha * delta
		s.MovingVar = (1-movingAlpha)*(s.MovingVar + movingAlpha*delta*delta)
	}
	s.Step++

	s.RecentMeans = append(s.RecentMeans, s.MovingMean)
	if window > 0 && len(s.RecentMeans) > window {
		s.RecentMeans = s.RecentMeans[len(s.RecentMeans)-window:]
	}
	return s
}

// detectCollapse checks both collapse signals against the config and
// returns a reason string when one fires.
func (s TrainingState) detectCollapse(cfg CollapseConfig) (string, bool) {
	if s.Step < cfg.MinSteps {
		return "", false
	}

	if cfg.ClipSaturationSteps > 0 && s.ClipSaturatedSteps >= cfg.ClipSaturationSteps {
		return fmt.Sprintf("ratio clip saturated for %d consecutive steps", s.ClipSaturatedSteps), true
	}

	if len(s.RecentMeans) == 0 {
		return "", false
	}
	best := s.RecentMeans[0]
	for _, m := range s.RecentMeans[1:] {
		if m > best {
			best = m
		}
	}
	// The drop is measured against the best's magnitude, not its raw
	// value, so the test stays meaningful when every candidate sits
	// at the penalty floor and the window best is negative.
	drop := best - s.MovingMean
	if drop > (1-cfg.Fraction)*math.Abs(best)+dropEpsilon {
		return fmt.Sprintf("moving mean reward %.4f dropped %.4f below window best %.4f",
			s.MovingMean, drop, best), true
	}
	return "", false
}
