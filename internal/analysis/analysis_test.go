package analysis

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/refinelab/refinery/internal/evaluate"
	"github.com/refinelab/refinery/internal/exec"
	"github.com/refinelab/refinery/internal/phase"
	"github.com/refinelab/refinery/internal/reward"
	"github.com/refinelab/refinery/internal/verify"
	"github.com/refinelab/refinery/pkg/models"
)

const baselineSuite = `package org.example;

import org.junit.Test;

public class Foo_ESTest {
    @Test
    public void test0() {
        Foo foo = new Foo();
        foo.run();
    }

    @Test
    public void test1() {
        Foo foo = new Foo();
        foo.run();
    }
}
`

// baseRunner fakes the toolchain for baseline measurement: fixed 50%
// line coverage and one of two mutants killed.
type baseRunner struct{}

func (baseRunner) Execute(_ context.Context, spec exec.CommandSpec) exec.Outcome {
	args := strings.Join(spec.Args, " ")

	switch {
	case spec.Name == "javac":
		return exec.Outcome{Status: exec.StatusOK}

	case strings.Contains(args, "-javaagent:"):
		for _, a := range spec.Args {
			if !strings.HasPrefix(a, "-javaagent:") {
				continue
			}
			for _, opt := range strings.Split(a, ",") {
				if i := strings.Index(opt, "destfile="); i >= 0 {
					os.WriteFile(opt[i+len("destfile="):], []byte("exec"), 0644)
				}
			}
		}
		return exec.Outcome{Status: exec.StatusOK, Stdout: "OK (2 tests)"}

	case strings.Contains(args, "MutationCoverageReport"):
		for i, a := range spec.Args {
			if a == "--reportDir" && i+1 < len(spec.Args) {
				os.MkdirAll(spec.Args[i+1], 0755)
				xml := `<mutations><mutation status="KILLED"/><mutation status="SURVIVED"/></mutations>`
				os.WriteFile(filepath.Join(spec.Args[i+1], "mutations.xml"), []byte(xml), 0644)
			}
		}
		return exec.Outcome{Status: exec.StatusOK}

	case strings.Contains(args, "report"):
		for i, a := range spec.Args {
			if a == "--xml" && i+1 < len(spec.Args) {
				xml := `<report><counter type="LINE" covered="8" missed="8"/><counter type="BRANCH" covered="1" missed="1"/></report>`
				os.WriteFile(spec.Args[i+1], []byte(xml), 0644)
			}
		}
		return exec.Outcome{Status: exec.StatusOK}
	}
	return exec.Outcome{Status: exec.StatusOK}
}

func analyzerFixture(t *testing.T) (*Analyzer, *models.TaskUnit, phase.Workspace) {
	t.Helper()
	root := t.TempDir()
	ws := phase.Workspace{Root: root}

	unit := &models.TaskUnit{
		ID:        "unit-1",
		Project:   "sample",
		ClassName: "org.example.Foo",
		TargetJar: filepath.Join(root, "sut.jar"),
		SourceDir: root,
	}

	measurer := evaluate.NewMeasurer(baseRunner{}, evaluate.DefaultConfig())
	return NewAnalyzer(measurer, ws), unit, ws
}

func writeUnitArtifacts(t *testing.T, ws phase.Workspace, unit *models.TaskUnit, refinedCoverage float64) {
	t.Helper()

	baseline := ws.BaselineTest(unit)
	if err := os.MkdirAll(filepath.Dir(baseline), 0755); err != nil {
		t.Fatalf("create baseline dir: %v", err)
	}
	if err := os.WriteFile(baseline, []byte(baselineSuite), 0644); err != nil {
		t.Fatalf("write baseline: %v", err)
	}

	result := evaluate.Result{
		UnitID:    unit.ID,
		Project:   unit.Project,
		ClassName: unit.ClassName,
		Metrics: reward.Metrics{
			Compiled:      true,
			Coverage:      refinedCoverage,
			MutationScore: 0.75,
		},
		Source: evaluate.SourceMetrics{SLOC: 10, Cyclomatic: 3},
	}
	writeTestJSON(t, evaluate.ResultPath(ws, unit.ID), result)

	report := verify.Report{
		UnitID:  unit.ID,
		Verdict: verify.VerdictPreservedPass,
	}
	writeTestJSON(t, verify.ReportPath(ws, unit.ID), report)
}

func writeTestJSON(t *testing.T, path string, v any) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("create dir for %s: %v", path, err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readComparison(t *testing.T, a *Analyzer, unitID string) Comparison {
	t.Helper()
	data, err := os.ReadFile(a.ComparisonFile(unitID))
	if err != nil {
		t.Fatalf("read comparison: %v", err)
	}
	var c Comparison
	if err := json.Unmarshal(data, &c); err != nil {
		t.Fatalf("decode comparison: %v", err)
	}
	return c
}

func TestRunWritesComparison(t *testing.T) {
	a, unit, ws := analyzerFixture(t)
	writeUnitArtifacts(t, ws, unit, 0.8)

	out, err := a.Run(context.Background(), unit)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.ArtifactRef != a.ComparisonFile(unit.ID) {
		t.Errorf("ArtifactRef = %q, want %q", out.ArtifactRef, a.ComparisonFile(unit.ID))
	}

	c := readComparison(t, a, unit.ID)
	if c.Baseline.Coverage != 0.5 {
		t.Errorf("baseline coverage = %f, want 0.5", c.Baseline.Coverage)
	}
	if c.Refined.Coverage != 0.8 {
		t.Errorf("refined coverage = %f, want 0.8", c.Refined.Coverage)
	}
	if got := c.CoverageDelta; got < 0.299 || got > 0.301 {
		t.Errorf("coverage delta = %f, want 0.3", got)
	}
	if !c.Preserved {
		t.Error("Preserved = false, want true")
	}
	if c.Baseline.SLOC == 0 {
		t.Error("baseline SLOC = 0, want measured source metrics")
	}
}

func TestRunMissingEvaluationResult(t *testing.T) {
	a, unit, _ := analyzerFixture(t)

	_, err := a.Run(context.Background(), unit)
	if err == nil {
		t.Fatal("Run() error = nil, want rejection")
	}
	if got := phase.Classify(err); got != phase.ClassRejected {
		t.Errorf("Classify() = %v, want ClassRejected", got)
	}
}

func TestRunMissingBaselineSuite(t *testing.T) {
	a, unit, ws := analyzerFixture(t)
	writeUnitArtifacts(t, ws, unit, 0.8)
	if err := os.Remove(ws.BaselineTest(unit)); err != nil {
		t.Fatalf("remove baseline: %v", err)
	}

	_, err := a.Run(context.Background(), unit)
	if err == nil {
		t.Fatal("Run() error = nil, want rejection")
	}
	if got := phase.Classify(err); got != phase.ClassRejected {
		t.Errorf("Classify() = %v, want ClassRejected", got)
	}
}

func TestFinalizeAggregates(t *testing.T) {
	a, unit, ws := analyzerFixture(t)
	writeUnitArtifacts(t, ws, unit, 0.8)
	if _, err := a.Run(context.Background(), unit); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	second := &models.TaskUnit{
		ID:        "unit-2",
		Project:   unit.Project,
		ClassName: "org.example.Bar",
		TargetJar: unit.TargetJar,
		SourceDir: unit.SourceDir,
	}
	writeUnitArtifacts(t, ws, second, 0.6)
	if _, err := a.Run(context.Background(), second); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	summary, err := a.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if summary.Units != 2 {
		t.Errorf("Units = %d, want 2", summary.Units)
	}
	if summary.CompilationRate != 1 {
		t.Errorf("CompilationRate = %f, want 1", summary.CompilationRate)
	}
	if summary.PreservationRate != 1 {
		t.Errorf("PreservationRate = %f, want 1", summary.PreservationRate)
	}
	// Deltas: 0.3 and 0.1 against the fixed 0.5 baseline.
	if got := summary.MeanCoverageDelta; got < 0.199 || got > 0.201 {
		t.Errorf("MeanCoverageDelta = %f, want 0.2", got)
	}

	for _, name := range []string{"summary.json", "summary_stats.csv", "statistical_significance.csv", "correlations.csv"} {
		if _, err := os.Stat(filepath.Join(a.OutputDir(), name)); err != nil {
			t.Errorf("missing output %s: %v", name, err)
		}
	}

	f, err := os.Open(filepath.Join(a.OutputDir(), "statistical_significance.csv"))
	if err != nil {
		t.Fatalf("open significance csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read significance csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("significance csv has %d rows, want header plus coverage and mutation", len(rows))
	}
	if rows[1][0] != "coverage" || rows[2][0] != "mutation" {
		t.Errorf("significance metrics = %q, %q, want coverage, mutation", rows[1][0], rows[2][0])
	}
}

func TestFinalizeWithoutComparisons(t *testing.T) {
	a, _, _ := analyzerFixture(t)
	if _, err := a.Finalize(); err == nil {
		t.Error("Finalize() error = nil, want error with no comparisons")
	}
}

func TestAnalyzerPhase(t *testing.T) {
	a, _, _ := analyzerFixture(t)
	if got := a.Phase(); got != models.PhaseAnalysis {
		t.Errorf("Phase() = %v, want %v", got, models.PhaseAnalysis)
	}
	var _ phase.Runner = a
}
