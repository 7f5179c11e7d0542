// Package baseline generates the initial test suite for each target
// class by driving an EvoSuite process inside the sandbox runner.
package baseline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/refinelab/refinery/internal/exec"
	"github.com/refinelab/refinery/internal/phase"
	"github.com/refinelab/refinery/pkg/models"
)

var logger = log.New(os.Stderr, "[baseline] ", log.LstdFlags)

// Config controls EvoSuite invocation.
type Config struct {
	// EvoSuiteJar is the path to the EvoSuite standalone jar.
	EvoSuiteJar string `mapstructure:"evosuite_jar"`
	// SearchBudget is the per-class generation budget in seconds.
	SearchBudget int `mapstructure:"search_budget"`
	// StartupGrace is added to the search budget to form the process
	// timeout; EvoSuite needs time to boot and minimize.
	StartupGrace time.Duration `mapstructure:"startup_grace"`
}

// DefaultConfig returns generation defaults.
func DefaultConfig() Config {
	return Config{
		SearchBudget: 60,
		StartupGrace: 120 * time.Second,
	}
}

// Generator runs baseline test generation for one unit at a time.
type Generator struct {
	runner exec.Runner
	ws     phase.Workspace
	cfg    Config
}

// NewGenerator creates a baseline generator.
func NewGenerator(runner exec.Runner, ws phase.Workspace, cfg Config) *Generator {
	return &Generator{runner: runner, ws: ws, cfg: cfg}
}

// Phase identifies this runner in the pipeline.
func (g *Generator) Phase() models.Phase {
	return models.PhaseBaseline
}

// Run generates the baseline suite for the unit. A process timeout or
// launch failure is transient; EvoSuite rejecting the class, or
// finishing without producing a suite, fails the unit.
func (g *Generator) Run(ctx context.Context, unit *models.TaskUnit) (*phase.Outcome, error) {
	if g.cfg.EvoSuiteJar == "" {
		return nil, fmt.Errorf("evosuite jar path is not configured")
	}
	if _, err := os.Stat(unit.TargetJar); err != nil {
		return nil, phase.Rejectf("target jar %s: %v", unit.TargetJar, err)
	}

	dir, err := g.ws.Dir(unit.ID, models.PhaseBaseline)
	if err != nil {
		return nil, fmt.Errorf("create baseline dir: %w", err)
	}
	testDir := filepath.Join(dir, "evosuite-tests")

	spec := exec.CommandSpec{
		Name: "java",
		Args: []string{
			"-jar", g.cfg.EvoSuiteJar,
			"-class", unit.ClassName,
			"-target", unit.TargetJar,
			"-Dtest_dir=" + testDir,
			"-Dsearch_budget=" + strconv.Itoa(g.cfg.SearchBudget),
			"-Dminimize=true",
			"-Dassertion_strategy=all",
		},
		Dir:     dir,
		Timeout: time.Duration(g.cfg.SearchBudget)*time.Second + g.cfg.StartupGrace,
	}

	logger.Printf("generating tests for %s (budget %ds)", unit.ClassName, g.cfg.SearchBudget)
	out := g.runner.Execute(ctx, spec)
	if err := saveLog(dir, out); err != nil {
		logger.Printf("save generation log for %s: %v", unit.ID, err)
	}

	switch out.Status {
	case exec.StatusTimeout:
		return nil, phase.Transientf("generation timed out after %s", spec.Timeout)
	case exec.StatusLaunchError:
		return nil, phase.Transientf("launch generation process: %s", out.Stderr)
	case exec.StatusNonzeroExit:
		return nil, phase.Rejectf("generator exited %d for %s", out.ExitCode, unit.ClassName)
	}

	testFile := g.ws.BaselineTest(unit)
	if _, err := os.Stat(testFile); err != nil {
		return nil, phase.Rejectf("generator produced no suite for %s", unit.ClassName)
	}

	return &phase.Outcome{
		ArtifactRef: testFile,
		Detail:      fmt.Sprintf("generated in %s", out.Duration.Round(time.Second)),
	}, nil
}

func saveLog(dir string, out exec.Outcome) error {
	body := "=== stdout ===\n" + out.Stdout + "\n=== stderr ===\n" + out.Stderr + "\n"
	return os.WriteFile(filepath.Join(dir, "generation.log"), []byte(body), 0644)
}
