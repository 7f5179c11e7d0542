package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/refinelab/refinery/internal/phase"
	"github.com/refinelab/refinery/internal/reward"
	"github.com/refinelab/refinery/pkg/models"
)

// Result is the persisted evaluation artifact for one unit.
type Result struct {
	UnitID    string           `json:"unit_id"`
	Project   string           `json:"project"`
	ClassName string           `json:"class"`
	Metrics   reward.Metrics   `json:"metrics"`
	Breakdown reward.Breakdown `json:"breakdown"`
	Source    SourceMetrics    `json:"source_metrics"`
}

// Evaluator measures the verified refined suite and persists the
// reward breakdown.
type Evaluator struct {
	measurer *Measurer
	ws       phase.Workspace
	weights  reward.Weights
	floor    float64
}

// NewEvaluator creates the evaluation phase runner.
func NewEvaluator(measurer *Measurer, ws phase.Workspace, weights reward.Weights, floor float64) *Evaluator {
	return &Evaluator{measurer: measurer, ws: ws, weights: weights, floor: floor}
}

// Phase identifies this runner in the pipeline.
func (e *Evaluator) Phase() models.Phase {
	return models.PhaseEvaluation
}

// ResultPath returns where the evaluation result for a unit lands.
func ResultPath(ws phase.Workspace, unitID string) string {
	return filepath.Join(ws.UnitDir(unitID), string(models.PhaseEvaluation), "metrics.json")
}

// ResultFile returns where the evaluation result for a unit lands.
func (e *Evaluator) ResultFile(unitID string) string {
	return ResultPath(e.ws, unitID)
}

// Run measures the refined suite. A suite that stopped compiling since
// verification is a deterministic failure.
func (e *Evaluator) Run(ctx context.Context, unit *models.TaskUnit) (*phase.Outcome, error) {
	testFile := e.ws.RefinedTest(unit)
	if _, err := os.Stat(testFile); err != nil {
		return nil, phase.Rejectf("refined suite missing for %s: %v", unit.ClassName, err)
	}

	dir, err := e.ws.Dir(unit.ID, models.PhaseEvaluation)
	if err != nil {
		return nil, fmt.Errorf("create evaluation dir: %w", err)
	}

	metrics, err := e.measurer.Measure(ctx, unit, testFile, filepath.Join(dir, "work"))
	if err != nil {
		return nil, err
	}

	src, err := AnalyzeFile(testFile)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", testFile, err)
	}

	result := Result{
		UnitID:    unit.ID,
		Project:   unit.Project,
		ClassName: unit.ClassName,
		Metrics:   metrics,
		Breakdown: reward.Aggregate(metrics, e.weights, e.floor),
		Source:    src,
	}

	path := e.ResultFile(unit.ID)
	if err := writeJSON(path, result); err != nil {
		return nil, fmt.Errorf("write evaluation result: %w", err)
	}

	if !metrics.Compiled {
		return nil, phase.Rejectf("refined suite for %s no longer compiles", unit.ClassName)
	}

	return &phase.Outcome{
		ArtifactRef: path,
		Detail: fmt.Sprintf("coverage %.1f%%, mutation %.1f%%, reward %.3f",
			metrics.Coverage*100, metrics.MutationScore*100, result.Breakdown.Scalar),
	}, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
