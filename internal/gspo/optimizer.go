package gspo

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/refinelab/refinery/internal/reward"
)

// Config tunes the optimizer. All values come from external
// configuration; Validate fills nothing in.
type Config struct {
	// GroupSize is how many candidates to sample per unit per step.
	GroupSize int `mapstructure:"group_size"`
	// Temperature controls stochastic decoding during sampling.
	Temperature float64 `mapstructure:"temperature"`
	// Epsilon is the clip range for the importance ratio.
	Epsilon float64 `mapstructure:"epsilon"`
	// NormalizeAdvantage divides advantages by the group reward std.
	NormalizeAdvantage bool `mapstructure:"normalize_advantage"`
	// StdEpsilon guards the normalization against near-zero variance.
	StdEpsilon float64 `mapstructure:"std_epsilon"`
	// ReferenceRefreshInterval is how many steps between reference
	// policy snapshots.
	ReferenceRefreshInterval int `mapstructure:"reference_refresh_interval"`
	// LearningRateBackoff is the factor applied by the reduce_lr
	// recovery action.
	LearningRateBackoff float64 `mapstructure:"learning_rate_backoff"`
	// Collapse tunes the collapse detector.
	Collapse CollapseConfig `mapstructure:"collapse"`
}

// DefaultConfig returns the default optimizer tuning.
func DefaultConfig() Config {
	return Config{
		GroupSize:                8,
		Temperature:              0.8,
		Epsilon:                  0.2,
		NormalizeAdvantage:       true,
		StdEpsilon:               1e-8,
		ReferenceRefreshInterval: 50,
		LearningRateBackoff:      0.5,
		Collapse:                 DefaultCollapseConfig(),
	}
}

// Validate checks the config for values the optimizer cannot run with.
func (c Config) Validate() error {
	if c.GroupSize < 2 {
		return fmt.Errorf("group_size must be at least 2 for group-relative advantages, got %d", c.GroupSize)
	}
	if c.Epsilon <= 0 || c.Epsilon >= 1 {
		return fmt.Errorf("epsilon must be in (0, 1), got %g", c.Epsilon)
	}
	if c.Temperature <= 0 {
		return fmt.Errorf("temperature must be positive, got %g", c.Temperature)
	}
	if !c.Collapse.Action.Valid() {
		return fmt.Errorf("unknown collapse recovery action %q", c.Collapse.Action)
	}
	return nil
}

// Scorer routes one candidate through verification and reward
// aggregation. A breakdown with Compiled=false carries the reward
// floor; a non-nil error means a fatal environment problem, not a
// failing candidate.
type Scorer interface {
	Score(ctx context.Context, unitID string, testSource string) (reward.Breakdown, error)
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(ctx context.Context, unitID string, testSource string) (reward.Breakdown, error)

// Score implements Scorer.
func (f ScorerFunc) Score(ctx context.Context, unitID string, testSource string) (reward.Breakdown, error) {
	return f(ctx, unitID, testSource)
}

// Task is one unit's refinement prompt for the current training batch.
type Task struct {
	// UnitID identifies the task unit.
	UnitID string
	// Prompt is the refinement prompt, including the baseline test.
	Prompt string
}

// StepResult summarizes one optimization step.
type StepResult struct {
	// Groups holds the scored candidate groups, one per task.
	Groups []*Group
	// MeanReward is the mean scalar reward across all candidates.
	MeanReward float64
	// ClipSaturatedShare is the fraction of candidates whose ratio sat
	// at the clip boundary.
	ClipSaturatedShare float64
	// Best maps unit id to its highest-reward candidate this step.
	Best map[string]*Candidate
}

// Optimizer drives GSPO optimization steps. The policy is a single
// shared resource: Update calls are serialized so overlapping batches
// never apply concurrent gradient steps.
type Optimizer struct {
	policy Policy
	scorer Scorer
	cfg    Config

	updateMu sync.Mutex
}

// NewOptimizer creates an Optimizer. The config must validate.
func NewOptimizer(policy Policy, scorer Scorer, cfg Config) (*Optimizer, error) {
	if policy == nil {
		return nil, fmt.Errorf("policy is required")
	}
	if scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("gspo config: %w", err)
	}
	return &Optimizer{policy: policy, scorer: scorer, cfg: cfg}, nil
}

// Step runs one optimization step: sample, score, normalize, ratio,
// clip, update, then stability tracking and periodic reference
// refresh. The returned TrainingState replaces the one passed in.
// A *CollapseError return means training must halt; the configured
// recovery action has already been applied.
func (o *Optimizer) Step(ctx context.Context, tasks []Task, state TrainingState) (*StepResult, TrainingState, error) {
	if len(tasks) == 0 {
		return nil, state, fmt.Errorf("empty training batch")
	}

	result := &StepResult{Best: make(map[string]*Candidate)}
	var batch []UpdateItem
	totalReward := 0.0
	saturated := 0
	total := 0

	for _, task := range tasks {
		group, err := o.sampleGroup(ctx, task)
		if err != nil {
			return nil, state, err
		}
		if err := o.scoreGroup(ctx, group); err != nil {
			return nil, state, err
		}

		adv := Advantages(group.Rewards(), o.cfg.NormalizeAdvantage, o.cfg.StdEpsilon)
		for i, c := range group.Candidates {
			c.Advantage = adv[i]
			c.Ratio = SequenceRatio(c.LogProbs, c.RefLogProbs)
			c.Objective = ClippedObjective(c.Ratio, c.Advantage, o.cfg.Epsilon)

			batch = append(batch, UpdateItem{
				Tokens:    c.Tokens,
				Advantage: c.Advantage,
				Ratio:     c.Ratio,
				Objective: c.Objective,
			})
			totalReward += c.Breakdown.Scalar
			if clipSaturated(c.Ratio, o.cfg.Epsilon) {
				saturated++
			}
			total++
		}

		result.Groups = append(result.Groups, group)
		if best := group.Best(); best != nil {
			result.Best[task.UnitID] = best
		}
	}

	// One update at a time: the policy is shared across the run.
	o.updateMu.Lock()
	err := o.policy.Update(ctx, batch)
	o.updateMu.Unlock()
	if err != nil {
		return nil, state, fmt.Errorf("policy update: %w", err)
	}

	result.MeanReward = totalReward / float64(total)
	result.ClipSaturatedShare = float64(saturated) / float64(total)

	state = state.observe(result.MeanReward, o.cfg.Collapse.Window)
	if result.ClipSaturatedShare >= o.cfg.Collapse.ClipSaturationFraction {
		state.ClipSaturatedSteps++
	} else {
		state.ClipSaturatedSteps = 0
	}

	if reason, collapsed := state.detectCollapse(o.cfg.Collapse); collapsed {
		state.CollapseCount++
		cerr := &CollapseError{Step: state.Step, Reason: reason, Action: o.cfg.Collapse.Action}
		if err := o.recover(cerr.Action); err != nil {
			cerr.Reason = fmt.Sprintf("%s (recovery also failed: %v)", cerr.Reason, err)
		}
		return result, state, cerr
	}

	state.StepsSinceRefresh++
	if o.cfg.ReferenceRefreshInterval > 0 && state.StepsSinceRefresh >= o.cfg.ReferenceRefreshInterval {
		if err := o.policy.SnapshotReference(); err != nil {
			return result, state, fmt.Errorf("reference refresh: %w", err)
		}
		state.StepsSinceRefresh = 0
	}

	return result, state, nil
}

// sampleGroup draws one group of candidates for a task and annotates
// each with reference-policy log-probabilities.
func (o *Optimizer) sampleGroup(ctx context.Context, task Task) (*Group, error) {
	samples, err := o.policy.Sample(ctx, task.Prompt, o.cfg.GroupSize, o.cfg.Temperature)
	if err != nil {
		return nil, fmt.Errorf("sample unit %s: %w", task.UnitID, err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("sample unit %s: policy returned no candidates", task.UnitID)
	}

	group := &Group{ID: uuid.New().String()[:8], UnitID: task.UnitID}
	for _, s := range samples {
		refLP, err := o.policy.ReferenceLogProbs(ctx, s.Tokens)
		if err != nil {
			return nil, fmt.Errorf("reference logprobs for unit %s: %w", task.UnitID, err)
		}
		group.Candidates = append(group.Candidates, &Candidate{
			UnitID:      task.UnitID,
			GroupID:     group.ID,
			Tokens:      s.Tokens,
			LogProbs:    s.LogProbs,
			RefLogProbs: refLP,
		})
	}
	return group, nil
}

// scoreGroup routes every candidate through the scorer. Candidates
// that fail verification stay in the group at the reward floor.
func (o *Optimizer) scoreGroup(ctx context.Context, group *Group) error {
	for _, c := range group.Candidates {
		b, err := o.scorer.Score(ctx, c.UnitID, c.Source())
		if err != nil {
			return fmt.Errorf("score candidate for unit %s: %w", c.UnitID, err)
		}
		c.Breakdown = b
	}
	return nil
}

// recover applies the configured collapse recovery action.
func (o *Optimizer) recover(action RecoveryAction) error {
	switch action {
	case RecoverRollback:
		return o.policy.RestoreSnapshot()
	case RecoverReduceLR:
		return o.policy.ScaleLearningRate(o.cfg.LearningRateBackoff)
	case RecoverAbort:
		return nil
	default:
		return fmt.Errorf("unknown recovery action %q", action)
	}
}
