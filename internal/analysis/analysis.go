// Package analysis closes the pipeline: it measures each unit's
// baseline suite with the same toolchain the refined suite was
// evaluated with, records the side-by-side comparison, and aggregates
// the comparisons into run-level statistics.
package analysis

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/refinelab/refinery/internal/evaluate"
	"github.com/refinelab/refinery/internal/phase"
	"github.com/refinelab/refinery/internal/reward"
	"github.com/refinelab/refinery/internal/verify"
	"github.com/refinelab/refinery/pkg/models"
)

var logger = log.New(os.Stderr, "[analysis] ", log.LstdFlags)

// Side is one suite's measurements in a baseline/refined comparison.
type Side struct {
	Compiled      bool    `json:"compiled"`
	Coverage      float64 `json:"coverage"`
	MutationScore float64 `json:"mutation_score"`
	Readability   float64 `json:"readability"`
	SLOC          int     `json:"sloc"`
	Cyclomatic    int     `json:"cyclomatic_complexity"`
	Branches      int     `json:"branches"`
	AvgIdentLen   float64 `json:"avg_identifier_length"`
	NestingDepth  int     `json:"max_nesting_depth"`
	SmellCount    int     `json:"smell_count"`
}

// Comparison is the persisted per-unit analysis artifact.
type Comparison struct {
	UnitID        string  `json:"unit_id"`
	Project       string  `json:"project"`
	ClassName     string  `json:"class"`
	Baseline      Side    `json:"baseline"`
	Refined       Side    `json:"refined"`
	CoverageDelta float64 `json:"coverage_delta"`
	MutationDelta float64 `json:"mutation_delta"`
	SLOCDelta     int     `json:"sloc_delta"`
	Preserved     bool    `json:"preserved"`
	Repaired      bool    `json:"repaired"`
}

// RunSummary is the run-level aggregate over all analyzed units.
type RunSummary struct {
	Units             int     `json:"units"`
	CompilationRate   float64 `json:"compilation_rate"`
	PreservationRate  float64 `json:"preservation_rate"`
	MeanCoverageDelta float64 `json:"mean_coverage_delta"`
	MeanMutationDelta float64 `json:"mean_mutation_delta"`
	MeanSLOCDelta     float64 `json:"mean_sloc_delta"`
}

// Analyzer runs the analysis phase per unit and aggregates the run.
type Analyzer struct {
	measurer *evaluate.Measurer
	ws       phase.Workspace
}

// NewAnalyzer creates the analysis phase runner.
func NewAnalyzer(measurer *evaluate.Measurer, ws phase.Workspace) *Analyzer {
	return &Analyzer{measurer: measurer, ws: ws}
}

// Phase identifies this runner in the pipeline.
func (a *Analyzer) Phase() models.Phase {
	return models.PhaseAnalysis
}

// ComparisonFile returns where the per-unit comparison lands.
func (a *Analyzer) ComparisonFile(unitID string) string {
	return filepath.Join(a.ws.UnitDir(unitID), string(models.PhaseAnalysis), "comparison.json")
}

// OutputDir returns the run-level analysis output directory.
func (a *Analyzer) OutputDir() string {
	return filepath.Join(a.ws.Root, "analysis")
}

// Run measures the unit's baseline suite and writes the comparison
// against the refined suite's evaluation result.
func (a *Analyzer) Run(ctx context.Context, unit *models.TaskUnit) (*phase.Outcome, error) {
	result, err := a.loadResult(unit.ID)
	if err != nil {
		return nil, phase.Rejectf("evaluation result missing for %s: %v", unit.ClassName, err)
	}

	baseline := a.ws.BaselineTest(unit)
	if _, err := os.Stat(baseline); err != nil {
		return nil, phase.Rejectf("baseline suite missing for %s: %v", unit.ClassName, err)
	}

	dir, err := a.ws.Dir(unit.ID, models.PhaseAnalysis)
	if err != nil {
		return nil, fmt.Errorf("create analysis dir: %w", err)
	}

	baseMetrics, err := a.measurer.Measure(ctx, unit, baseline, filepath.Join(dir, "work"))
	if err != nil {
		return nil, err
	}
	baseSource, err := evaluate.AnalyzeFile(baseline)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", baseline, err)
	}

	cmp := Comparison{
		UnitID:    unit.ID,
		Project:   unit.Project,
		ClassName: unit.ClassName,
		Baseline:  makeSide(baseMetrics, baseSource),
		Refined:   makeSide(result.Metrics, result.Source),
	}
	cmp.CoverageDelta = cmp.Refined.Coverage - cmp.Baseline.Coverage
	cmp.MutationDelta = cmp.Refined.MutationScore - cmp.Baseline.MutationScore
	cmp.SLOCDelta = cmp.Refined.SLOC - cmp.Baseline.SLOC

	if report, err := a.loadReport(unit.ID); err == nil {
		cmp.Preserved = report.Verdict.Preserved()
		cmp.Repaired = report.Repaired
	} else {
		logger.Printf("no verification report for %s: %v", unit.ID, err)
	}

	if err := writeJSON(a.ComparisonFile(unit.ID), cmp); err != nil {
		return nil, fmt.Errorf("write comparison: %w", err)
	}

	return &phase.Outcome{
		ArtifactRef: a.ComparisonFile(unit.ID),
		Detail: fmt.Sprintf("coverage %+.1f%%, mutation %+.1f%%, sloc %+d",
			cmp.CoverageDelta*100, cmp.MutationDelta*100, cmp.SLOCDelta),
	}, nil
}

// Finalize aggregates every written comparison into the run-level
// summary and statistics files. It scans the workspace rather than
// taking a unit list so a resumed run picks up earlier comparisons.
func (a *Analyzer) Finalize() (*RunSummary, error) {
	comparisons, err := a.loadComparisons()
	if err != nil {
		return nil, err
	}
	if len(comparisons) == 0 {
		return nil, fmt.Errorf("no comparisons to analyze")
	}

	out := a.OutputDir()
	if err := os.MkdirAll(out, 0755); err != nil {
		return nil, fmt.Errorf("create analysis output dir: %w", err)
	}

	summary := summarize(comparisons)
	if err := writeJSON(filepath.Join(out, "summary.json"), summary); err != nil {
		return nil, err
	}
	if err := writeSummaryStats(filepath.Join(out, "summary_stats.csv"), comparisons); err != nil {
		return nil, err
	}
	if err := writeSignificance(filepath.Join(out, "statistical_significance.csv"), comparisons); err != nil {
		return nil, err
	}
	if err := writeCorrelations(filepath.Join(out, "correlations.csv"), comparisons); err != nil {
		return nil, err
	}

	logger.Printf("analyzed %d units into %s", len(comparisons), out)
	return &summary, nil
}

func (a *Analyzer) loadResult(unitID string) (*evaluate.Result, error) {
	data, err := os.ReadFile(evaluate.ResultPath(a.ws, unitID))
	if err != nil {
		return nil, err
	}
	var r evaluate.Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (a *Analyzer) loadReport(unitID string) (*verify.Report, error) {
	data, err := os.ReadFile(verify.ReportPath(a.ws, unitID))
	if err != nil {
		return nil, err
	}
	var r verify.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (a *Analyzer) loadComparisons() ([]Comparison, error) {
	pattern := filepath.Join(a.ws.Root, "units", "*", string(models.PhaseAnalysis), "comparison.json")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	var out []Comparison
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		var c Comparison
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decode %s: %w", p, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func makeSide(m reward.Metrics, src evaluate.SourceMetrics) Side {
	return Side{
		Compiled:      m.Compiled,
		Coverage:      m.Coverage,
		MutationScore: m.MutationScore,
		Readability:   m.Readability,
		SLOC:          src.SLOC,
		Cyclomatic:    src.Cyclomatic,
		Branches:      src.SwitchCount + src.PrimitiveConditions,
		AvgIdentLen:   src.AvgIdentifierLen,
		NestingDepth:  src.MaxNestingDepth,
		SmellCount:    src.SmellCount,
	}
}

func summarize(comparisons []Comparison) RunSummary {
	s := RunSummary{Units: len(comparisons)}
	n := float64(len(comparisons))
	for _, c := range comparisons {
		if c.Refined.Compiled {
			s.CompilationRate += 1 / n
		}
		if c.Preserved {
			s.PreservationRate += 1 / n
		}
		s.MeanCoverageDelta += c.CoverageDelta / n
		s.MeanMutationDelta += c.MutationDelta / n
		s.MeanSLOCDelta += float64(c.SLOCDelta) / n
	}
	return s
}

// column extractors for the run-level statistics.
type column struct {
	name string
	get  func(Comparison) float64
}

func statColumns() []column {
	return []column{
		{"baseline_coverage", func(c Comparison) float64 { return c.Baseline.Coverage }},
		{"refined_coverage", func(c Comparison) float64 { return c.Refined.Coverage }},
		{"baseline_mutation", func(c Comparison) float64 { return c.Baseline.MutationScore }},
		{"refined_mutation", func(c Comparison) float64 { return c.Refined.MutationScore }},
		{"refined_sloc", func(c Comparison) float64 { return float64(c.Refined.SLOC) }},
		{"refined_cyclomatic", func(c Comparison) float64 { return float64(c.Refined.Cyclomatic) }},
		{"refined_avg_identifier_length", func(c Comparison) float64 { return c.Refined.AvgIdentLen }},
		{"refined_max_nesting_depth", func(c Comparison) float64 { return float64(c.Refined.NestingDepth) }},
	}
}

func extract(comparisons []Comparison, get func(Comparison) float64) []float64 {
	out := make([]float64, len(comparisons))
	for i, c := range comparisons {
		out[i] = get(c)
	}
	return out
}

func writeSummaryStats(path string, comparisons []Comparison) error {
	rows := [][]string{{"metric", "count", "mean", "std", "min", "max"}}
	for _, col := range statColumns() {
		d := describeColumn(extract(comparisons, col.get))
		rows = append(rows, []string{
			col.name,
			strconv.Itoa(d.Count),
			formatFloat(d.Mean),
			formatFloat(d.Std),
			formatFloat(d.Min),
			formatFloat(d.Max),
		})
	}
	return writeCSV(path, rows)
}

func writeSignificance(path string, comparisons []Comparison) error {
	rows := [][]string{{"metric", "p_value", "effect_size_a12", "mean_diff"}}
	pairs := []struct {
		name     string
		baseline func(Comparison) float64
		refined  func(Comparison) float64
	}{
		{"coverage",
			func(c Comparison) float64 { return c.Baseline.Coverage },
			func(c Comparison) float64 { return c.Refined.Coverage }},
		{"mutation",
			func(c Comparison) float64 { return c.Baseline.MutationScore },
			func(c Comparison) float64 { return c.Refined.MutationScore }},
	}
	for _, pair := range pairs {
		base := extract(comparisons, pair.baseline)
		refined := extract(comparisons, pair.refined)
		p := WilcoxonSignedRank(base, refined)
		a12 := VarghaDelaneyA12(base, refined)
		meanDiff := describeColumn(diff(refined, base)).Mean
		rows = append(rows, []string{
			pair.name,
			formatFloat(p),
			formatFloat(a12),
			formatFloat(meanDiff),
		})
	}
	return writeCSV(path, rows)
}

func writeCorrelations(path string, comparisons []Comparison) error {
	improvement := extract(comparisons, func(c Comparison) float64 { return c.CoverageDelta })

	rows := [][]string{{"code_metric", "spearman_corr", "p_value"}}
	metrics := []column{
		{"sloc", func(c Comparison) float64 { return float64(c.Refined.SLOC) }},
		{"cyclomatic", func(c Comparison) float64 { return float64(c.Refined.Cyclomatic) }},
		{"branches", func(c Comparison) float64 { return float64(c.Refined.Branches) }},
	}
	for _, m := range metrics {
		corr, p := SpearmanCorr(extract(comparisons, m.get), improvement)
		rows = append(rows, []string{m.name, formatFloat(corr), formatFloat(p)})
	}
	return writeCSV(path, rows)
}

func diff(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
