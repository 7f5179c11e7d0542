// Package refine drives the policy-optimization loop that rewrites
// baseline suites: groups of candidate refinements are sampled from
// the policy, measured, and fed back as reward. Optimization steps are
// serialized across units because they share one policy and one
// training state.
package refine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/refinelab/refinery/internal/evaluate"
	"github.com/refinelab/refinery/internal/exec"
	"github.com/refinelab/refinery/internal/gspo"
	"github.com/refinelab/refinery/internal/phase"
	"github.com/refinelab/refinery/internal/reward"
	"github.com/refinelab/refinery/pkg/models"
)

var logger = log.New(os.Stderr, "[refine] ", log.LstdFlags)

// Config controls the per-unit optimization run.
type Config struct {
	// Steps is how many optimization steps each unit gets.
	Steps int `mapstructure:"steps"`
	// Optimizer holds the policy-optimization settings.
	Optimizer gspo.Config `mapstructure:",squash"`
	// Weights and PenaltyFloor shape the candidate reward.
	Weights      reward.Weights `mapstructure:"weights"`
	PenaltyFloor float64        `mapstructure:"penalty_floor"`
}

// DefaultConfig returns refinement defaults.
func DefaultConfig() Config {
	return Config{
		Steps:        5,
		Optimizer:    gspo.DefaultConfig(),
		Weights:      reward.DefaultWeights(),
		PenaltyFloor: reward.DefaultPenaltyFloor,
	}
}

// Summary is the persisted refinement artifact for one unit.
type Summary struct {
	UnitID     string    `json:"unit_id"`
	Steps      int       `json:"steps"`
	BestReward float64   `json:"best_reward"`
	MeanReward []float64 `json:"mean_reward_by_step"`
	Candidates int       `json:"candidates_scored"`
}

// Refiner runs the refinement phase. One Refiner is shared by all
// workers; it owns the optimizer, the training state, and the registry
// that routes candidate scoring back to the unit being refined.
type Refiner struct {
	runner   exec.Runner
	measurer *evaluate.Measurer
	ws       phase.Workspace
	cfg      Config

	opt *gspo.Optimizer

	// stepMu serializes optimization steps; regMu guards the unit
	// registry, which Score reads while a step is in flight.
	stepMu sync.Mutex
	state  gspo.TrainingState
	regMu  sync.Mutex
	units  map[string]*models.TaskUnit
}

// NewRefiner creates the refinement phase runner.
func NewRefiner(policy gspo.Policy, runner exec.Runner, measurer *evaluate.Measurer, ws phase.Workspace, cfg Config) (*Refiner, error) {
	r := &Refiner{
		runner:   runner,
		measurer: measurer,
		ws:       ws,
		cfg:      cfg,
		state:    gspo.NewTrainingState(),
		units:    make(map[string]*models.TaskUnit),
	}

	opt, err := gspo.NewOptimizer(policy, r, cfg.Optimizer)
	if err != nil {
		return nil, err
	}
	r.opt = opt
	return r, nil
}

// Phase identifies this runner in the pipeline.
func (r *Refiner) Phase() models.Phase {
	return models.PhaseRefinement
}

// SummaryFile returns where the refinement summary for a unit lands.
func (r *Refiner) SummaryFile(unitID string) string {
	return filepath.Join(r.ws.UnitDir(unitID), string(models.PhaseRefinement), "summary.json")
}

// Run optimizes the unit's baseline suite and writes the best
// compiling candidate as the refined suite. A policy collapse aborts
// the run.
func (r *Refiner) Run(ctx context.Context, unit *models.TaskUnit) (*phase.Outcome, error) {
	baseline := r.ws.BaselineTest(unit)
	source, err := os.ReadFile(baseline)
	if err != nil {
		return nil, phase.Rejectf("baseline suite missing for %s: %v", unit.ClassName, err)
	}

	dir, err := r.ws.Dir(unit.ID, models.PhaseRefinement)
	if err != nil {
		return nil, fmt.Errorf("create refinement dir: %w", err)
	}

	prompt := buildPrompt(string(source), extractContext(ctx, r.runner, unit))
	task := gspo.Task{UnitID: unit.ID, Prompt: prompt}

	r.register(unit)
	defer r.unregister(unit.ID)

	summary := Summary{UnitID: unit.ID, Steps: r.cfg.Steps}
	var best *gspo.Candidate

	for step := 0; step < r.cfg.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := r.step(ctx, task)
		if err != nil {
			// A collapsed policy poisons every unit; stop the run.
			return nil, err
		}

		summary.MeanReward = append(summary.MeanReward, result.MeanReward)
		summary.Candidates += len(result.Groups[0].Candidates)

		if cand := result.Best[unit.ID]; cand != nil && cand.Breakdown.Compiled {
			if best == nil || cand.Breakdown.Scalar > best.Breakdown.Scalar {
				best = cand
			}
		}
	}

	if best == nil {
		r.writeSummary(unit.ID, summary)
		return nil, phase.Rejectf("no compiling candidate for %s after %d steps", unit.ClassName, r.cfg.Steps)
	}

	refined := r.ws.RefinedTest(unit)
	if err := os.WriteFile(refined, []byte(best.Source()), 0644); err != nil {
		return nil, fmt.Errorf("write refined suite: %w", err)
	}
	if err := copyScaffolding(r.ws.BaselineScaffolding(unit), dir); err != nil {
		logger.Printf("copy scaffolding for %s: %v", unit.ID, err)
	}

	summary.BestReward = best.Breakdown.Scalar
	r.writeSummary(unit.ID, summary)

	return &phase.Outcome{
		ArtifactRef: refined,
		Detail:      fmt.Sprintf("best reward %.3f over %d steps", best.Breakdown.Scalar, r.cfg.Steps),
	}, nil
}

// step runs one serialized optimization step.
func (r *Refiner) step(ctx context.Context, task gspo.Task) (*gspo.StepResult, error) {
	r.stepMu.Lock()
	defer r.stepMu.Unlock()

	result, state, err := r.opt.Step(ctx, []gspo.Task{task}, r.state)
	if err != nil {
		return nil, err
	}
	r.state = state
	return result, nil
}

// Score implements gspo.Scorer: a candidate's source is written out
// and measured like any other suite.
func (r *Refiner) Score(ctx context.Context, unitID, testSource string) (reward.Breakdown, error) {
	unit := r.lookup(unitID)
	if unit == nil {
		return reward.Breakdown{}, fmt.Errorf("no unit registered for %s", unitID)
	}

	workDir, err := os.MkdirTemp(filepath.Join(r.ws.UnitDir(unitID), string(models.PhaseRefinement)), "cand-")
	if err != nil {
		return reward.Breakdown{}, fmt.Errorf("create candidate dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	candFile := filepath.Join(workDir, phase.SimpleName(unit.ClassName)+"_ESTest.java")
	if err := os.WriteFile(candFile, []byte(testSource), 0644); err != nil {
		return reward.Breakdown{}, fmt.Errorf("write candidate: %w", err)
	}
	// Candidates compile against the same scaffolding the baseline
	// shipped with.
	scaffolding := r.ws.BaselineScaffolding(unit)
	if _, err := os.Stat(scaffolding); err == nil {
		if err := copyFile(scaffolding, filepath.Join(workDir, filepath.Base(scaffolding))); err != nil {
			return reward.Breakdown{}, fmt.Errorf("copy scaffolding: %w", err)
		}
	}

	metrics, err := r.measurer.Measure(ctx, unit, candFile, filepath.Join(workDir, "measure"))
	if err != nil {
		return reward.Breakdown{}, err
	}
	return reward.Aggregate(metrics, r.cfg.Weights, r.cfg.PenaltyFloor), nil
}

func (r *Refiner) register(unit *models.TaskUnit) {
	r.regMu.Lock()
	defer r.regMu.Unlock()
	r.units[unit.ID] = unit
}

func (r *Refiner) unregister(unitID string) {
	r.regMu.Lock()
	defer r.regMu.Unlock()
	delete(r.units, unitID)
}

func (r *Refiner) lookup(unitID string) *models.TaskUnit {
	r.regMu.Lock()
	defer r.regMu.Unlock()
	return r.units[unitID]
}

func (r *Refiner) writeSummary(unitID string, summary Summary) {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(r.SummaryFile(unitID), append(data, '\n'), 0644); err != nil {
		logger.Printf("write summary for %s: %v", unitID, err)
	}
}

func buildPrompt(testCode, sutContext string) string {
	return fmt.Sprintf(`Refine this Java test to be concise and readable. Remove redundancy.

CONTEXT (System Under Test):
%s

ORIGINAL TEST:
`+"```java\n%s\n```"+`
OUTPUT ONLY JAVA CODE.`, sutContext, testCode)
}

func copyScaffolding(src, destDir string) error {
	if _, err := os.Stat(src); err != nil {
		// Not every generated suite has scaffolding.
		return nil
	}
	return copyFile(src, filepath.Join(destDir, filepath.Base(src)))
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
