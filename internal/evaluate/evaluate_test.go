package evaluate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/refinelab/refinery/internal/exec"
	"github.com/refinelab/refinery/internal/phase"
	"github.com/refinelab/refinery/internal/reward"
	"github.com/refinelab/refinery/pkg/models"
)

func evaluatorFixture(t *testing.T, runner exec.Runner) (*Evaluator, *models.TaskUnit, phase.Workspace) {
	t.Helper()
	ws := phase.Workspace{Root: t.TempDir()}
	unit := &models.TaskUnit{
		ID:        "unit-1",
		Project:   "sample",
		ClassName: "org.example.Foo",
		TargetJar: filepath.Join(ws.Root, "sut.jar"),
		SourceDir: ws.Root,
	}
	ev := NewEvaluator(NewMeasurer(runner, DefaultConfig()), ws, reward.DefaultWeights(), reward.DefaultPenaltyFloor)
	return ev, unit, ws
}

func writeRefined(t *testing.T, ws phase.Workspace, unit *models.TaskUnit) {
	t.Helper()
	path := ws.RefinedTest(unit)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(sampleTest), 0644); err != nil {
		t.Fatalf("write refined suite: %v", err)
	}
}

func TestEvaluatorRun(t *testing.T) {
	runner := &toolRunner{compileStatus: exec.StatusOK, coverageXML: sampleJaCoCo, mutationsXML: samplePit}
	ev, unit, ws := evaluatorFixture(t, runner)
	writeRefined(t, ws, unit)

	out, err := ev.Run(context.Background(), unit)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.ArtifactRef != ev.ResultFile(unit.ID) {
		t.Errorf("ArtifactRef = %q, want %q", out.ArtifactRef, ev.ResultFile(unit.ID))
	}

	data, err := os.ReadFile(ev.ResultFile(unit.ID))
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.ClassName != unit.ClassName {
		t.Errorf("ClassName = %q, want %q", result.ClassName, unit.ClassName)
	}
	if !result.Metrics.Compiled {
		t.Error("Compiled = false, want true")
	}
	if result.Breakdown.Scalar <= 0 {
		t.Errorf("Scalar = %f, want > 0 for a compiling suite", result.Breakdown.Scalar)
	}
}

func TestEvaluatorRunMissingSuite(t *testing.T) {
	ev, unit, _ := evaluatorFixture(t, &toolRunner{})

	_, err := ev.Run(context.Background(), unit)
	if err == nil {
		t.Fatal("Run() should fail without a refined suite")
	}
	if got := phase.Classify(err); got != phase.ClassRejected {
		t.Errorf("Classify() = %v, want rejected", got)
	}
}

func TestEvaluatorRunNonCompilingSuite(t *testing.T) {
	runner := &toolRunner{compileStatus: exec.StatusNonzeroExit}
	ev, unit, ws := evaluatorFixture(t, runner)
	writeRefined(t, ws, unit)

	_, err := ev.Run(context.Background(), unit)
	if err == nil {
		t.Fatal("Run() should fail when the suite no longer compiles")
	}
	if got := phase.Classify(err); got != phase.ClassRejected {
		t.Errorf("Classify() = %v, want rejected", got)
	}

	// The result is still persisted with the penalty floor applied.
	data, err := os.ReadFile(ev.ResultFile(unit.ID))
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Breakdown.Scalar != reward.DefaultPenaltyFloor {
		t.Errorf("Scalar = %f, want penalty floor %f", result.Breakdown.Scalar, reward.DefaultPenaltyFloor)
	}
}

func TestEvaluatorPhase(t *testing.T) {
	ev, _, _ := evaluatorFixture(t, &toolRunner{})
	if ev.Phase() != models.PhaseEvaluation {
		t.Errorf("Phase() = %q, want evaluation", ev.Phase())
	}
	var _ phase.Runner = ev
}
