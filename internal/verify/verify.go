// Package verify checks that a refined suite still encodes the same
// oracle as the baseline it was refined from: both suites must agree
// on pass or fail against the unchanged class under test. Refined
// suites that stop compiling go through a bounded LLM repair loop
// first.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/refinelab/refinery/internal/exec"
	"github.com/refinelab/refinery/internal/phase"
	"github.com/refinelab/refinery/internal/repair"
	"github.com/refinelab/refinery/pkg/models"
)

var logger = log.New(os.Stderr, "[verify] ", log.LstdFlags)

// Verdict is the oracle-preservation outcome.
type Verdict string

const (
	// VerdictPreservedPass: both suites pass.
	VerdictPreservedPass Verdict = "preserved_pass"
	// VerdictPreservedFail: both suites fail the same way the
	// baseline does; the oracle is intact even though it is red.
	VerdictPreservedFail Verdict = "preserved_fail"
	// VerdictRegression: the baseline passes but the refined suite
	// does not.
	VerdictRegression Verdict = "regression"
	// VerdictUnexpectedFix: the refined suite passes where the
	// baseline fails, meaning refinement changed the oracle.
	VerdictUnexpectedFix Verdict = "unexpected_fix"
)

// Preserved reports whether the verdict keeps the unit alive.
func (v Verdict) Preserved() bool {
	return v == VerdictPreservedPass || v == VerdictPreservedFail
}

// Report is the persisted verification artifact.
type Report struct {
	UnitID         string  `json:"unit_id"`
	Verdict        Verdict `json:"verdict"`
	OriginalPassed bool    `json:"original_passed"`
	RefinedPassed  bool    `json:"refined_passed"`
	Repaired       bool    `json:"repaired"`
	RepairAttempts int     `json:"repair_attempts"`
}

// Config bounds the verification toolchain.
type Config struct {
	JUnitJar           string        `mapstructure:"junit_jar"`
	HamcrestJar        string        `mapstructure:"hamcrest_jar"`
	EvoSuiteRuntimeJar string        `mapstructure:"evosuite_runtime_jar"`
	CompileTimeout     time.Duration `mapstructure:"compile_timeout"`
	TestTimeout        time.Duration `mapstructure:"test_timeout"`
	// RepairAttempts caps the LLM repair loop; zero disables repair.
	RepairAttempts int `mapstructure:"repair_attempts"`
}

// DefaultConfig returns verification defaults.
func DefaultConfig() Config {
	return Config{
		CompileTimeout: 60 * time.Second,
		TestTimeout:    60 * time.Second,
		RepairAttempts: 3,
	}
}

// Verifier runs the verification phase.
type Verifier struct {
	runner exec.Runner
	fixer  repair.Fixer
	ws     phase.Workspace
	cfg    Config
}

// NewVerifier creates a verifier. fixer may be nil to disable repair.
func NewVerifier(runner exec.Runner, fixer repair.Fixer, ws phase.Workspace, cfg Config) *Verifier {
	return &Verifier{runner: runner, fixer: fixer, ws: ws, cfg: cfg}
}

// Phase identifies this runner in the pipeline.
func (v *Verifier) Phase() models.Phase {
	return models.PhaseVerification
}

// ReportPath returns where the verification report for a unit lands.
func ReportPath(ws phase.Workspace, unitID string) string {
	return filepath.Join(ws.UnitDir(unitID), string(models.PhaseVerification), "report.json")
}

// ReportFile returns where the verification report for a unit lands.
func (v *Verifier) ReportFile(unitID string) string {
	return ReportPath(v.ws, unitID)
}

// Run verifies the refined suite against the baseline.
func (v *Verifier) Run(ctx context.Context, unit *models.TaskUnit) (*phase.Outcome, error) {
	refined := v.ws.RefinedTest(unit)
	original := v.ws.BaselineTest(unit)
	for _, f := range []string{refined, original} {
		if _, err := os.Stat(f); err != nil {
			return nil, phase.Rejectf("suite missing for %s: %v", unit.ClassName, err)
		}
	}

	dir, err := v.ws.Dir(unit.ID, models.PhaseVerification)
	if err != nil {
		return nil, fmt.Errorf("create verification dir: %w", err)
	}

	report := Report{UnitID: unit.ID}

	// Compile the refined suite, repairing if needed.
	refinedClasses := filepath.Join(dir, "refined-classes")
	ok, diag, err := v.compile(ctx, unit, refined, refinedClasses)
	if err != nil {
		return nil, err
	}
	if !ok {
		repaired, attempts, err := v.repairLoop(ctx, unit, refined, refinedClasses, diag)
		report.Repaired = repaired
		report.RepairAttempts = attempts
		if err != nil {
			return nil, err
		}
		if !repaired {
			v.writeReport(unit.ID, report)
			return nil, phase.Rejectf("refined suite for %s does not compile", unit.ClassName)
		}
	}

	// The baseline compiled when it was generated; a failure here is
	// an environment problem, not the unit's fault.
	originalClasses := filepath.Join(dir, "original-classes")
	ok, diag, err = v.compile(ctx, unit, original, originalClasses)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, phase.Transientf("baseline suite stopped compiling: %s", firstLine(diag))
	}

	testClass := testClassName(unit.ClassName)
	origPassed, err := v.runSuite(ctx, unit, originalClasses, filepath.Dir(original), testClass)
	if err != nil {
		return nil, err
	}
	refPassed, err := v.runSuite(ctx, unit, refinedClasses, filepath.Dir(refined), testClass)
	if err != nil {
		return nil, err
	}

	report.OriginalPassed = origPassed
	report.RefinedPassed = refPassed
	report.Verdict = verdict(origPassed, refPassed)
	v.writeReport(unit.ID, report)

	if !report.Verdict.Preserved() {
		return nil, phase.Rejectf("oracle not preserved for %s: %s", unit.ClassName, report.Verdict)
	}

	return &phase.Outcome{
		ArtifactRef: v.ReportFile(unit.ID),
		Detail:      string(report.Verdict),
	}, nil
}

func verdict(origPassed, refPassed bool) Verdict {
	switch {
	case origPassed && refPassed:
		return VerdictPreservedPass
	case !origPassed && !refPassed:
		return VerdictPreservedFail
	case origPassed:
		return VerdictRegression
	default:
		return VerdictUnexpectedFix
	}
}

// compile builds a suite plus any scaffolding beside it. Returns the
// compiler diagnostics when the suite is rejected.
func (v *Verifier) compile(ctx context.Context, unit *models.TaskUnit, testFile, outDir string) (bool, string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return false, "", fmt.Errorf("create classes dir: %w", err)
	}

	sources := []string{testFile}
	scaffolding := strings.TrimSuffix(testFile, ".java") + "_scaffolding.java"
	if _, err := os.Stat(scaffolding); err == nil {
		sources = append(sources, scaffolding)
	}

	args := []string{"-cp", v.classpath(unit, filepath.Dir(testFile)), "-d", outDir}
	args = append(args, sources...)

	out := v.runner.Execute(ctx, exec.CommandSpec{
		Name:    "javac",
		Args:    args,
		Timeout: v.cfg.CompileTimeout,
	})
	switch out.Status {
	case exec.StatusOK:
		return true, "", nil
	case exec.StatusNonzeroExit:
		return false, out.Stderr, nil
	case exec.StatusTimeout:
		return false, "", phase.Transientf("compile timed out after %s", v.cfg.CompileTimeout)
	default:
		return false, "", phase.Transientf("launch compiler: %s", out.Stderr)
	}
}

// repairLoop rewrites the refined suite in place until it compiles or
// attempts run out.
func (v *Verifier) repairLoop(ctx context.Context, unit *models.TaskUnit, testFile, outDir, diag string) (bool, int, error) {
	if v.fixer == nil || v.cfg.RepairAttempts <= 0 {
		return false, 0, nil
	}

	source, err := os.ReadFile(testFile)
	if err != nil {
		return false, 0, fmt.Errorf("read suite for repair: %w", err)
	}
	code := string(source)

	for attempt := 1; attempt <= v.cfg.RepairAttempts; attempt++ {
		logger.Printf("repair attempt %d/%d for %s", attempt, v.cfg.RepairAttempts, unit.ClassName)

		fixed, err := v.fixer.FixCompile(ctx, repair.Request{Source: code, Errors: diag})
		if err != nil {
			if ctx.Err() != nil {
				return false, attempt, ctx.Err()
			}
			logger.Printf("repair attempt %d for %s: %v", attempt, unit.ClassName, err)
			continue
		}

		if err := os.WriteFile(testFile, []byte(fixed), 0644); err != nil {
			return false, attempt, fmt.Errorf("write repaired suite: %w", err)
		}

		ok, nextDiag, err := v.compile(ctx, unit, testFile, outDir)
		if err != nil {
			return false, attempt, err
		}
		if ok {
			return true, attempt, nil
		}
		// Iterate on the repaired code with the fresh diagnostics.
		code = fixed
		diag = nextDiag
	}
	return false, v.cfg.RepairAttempts, nil
}

// runSuite executes a compiled suite and reports whether JUnit printed
// a green summary.
func (v *Verifier) runSuite(ctx context.Context, unit *models.TaskUnit, classesDir, testDir, testClass string) (bool, error) {
	out := v.runner.Execute(ctx, exec.CommandSpec{
		Name: "java",
		Args: []string{
			"-cp", classesDir + ":" + v.classpath(unit, testDir),
			"org.junit.runner.JUnitCore", testClass,
		},
		Timeout: v.cfg.TestTimeout,
	})
	switch out.Status {
	case exec.StatusOK, exec.StatusNonzeroExit:
		// JUnit exits nonzero on failing tests; both are answers.
		return strings.Contains(out.Stdout, "OK ("), nil
	case exec.StatusTimeout:
		return false, phase.Transientf("suite run timed out after %s", v.cfg.TestTimeout)
	default:
		return false, phase.Transientf("launch test runner: %s", out.Stderr)
	}
}

func (v *Verifier) classpath(unit *models.TaskUnit, extra string) string {
	parts := []string{unit.TargetJar, v.cfg.JUnitJar, v.cfg.EvoSuiteRuntimeJar, v.cfg.HamcrestJar}
	if extra != "" {
		parts = append(parts, extra)
	}
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ":")
}

func (v *Verifier) writeReport(unitID string, report Report) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return
	}
	path := v.ReportFile(unitID)
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		logger.Printf("write report for %s: %v", unitID, err)
	}
}

func testClassName(className string) string {
	return className + "_ESTest"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
