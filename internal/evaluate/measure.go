package evaluate

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/refinelab/refinery/internal/exec"
	"github.com/refinelab/refinery/internal/phase"
	"github.com/refinelab/refinery/internal/reward"
	"github.com/refinelab/refinery/pkg/models"
)

var logger = log.New(os.Stderr, "[evaluate] ", log.LstdFlags)

// Config locates the measurement toolchain and bounds its processes.
type Config struct {
	JUnitJar    string `mapstructure:"junit_jar"`
	HamcrestJar string `mapstructure:"hamcrest_jar"`
	// EvoSuiteRuntimeJar supplies the scaffolding runtime generated
	// suites link against.
	EvoSuiteRuntimeJar string `mapstructure:"evosuite_runtime_jar"`
	JaCoCoAgentJar     string `mapstructure:"jacoco_agent_jar"`
	JaCoCoCLIJar       string `mapstructure:"jacoco_cli_jar"`
	PitestJar          string `mapstructure:"pitest_jar"`

	CompileTimeout  time.Duration `mapstructure:"compile_timeout"`
	TestTimeout     time.Duration `mapstructure:"test_timeout"`
	MutationTimeout time.Duration `mapstructure:"mutation_timeout"`
}

// DefaultConfig returns measurement defaults.
func DefaultConfig() Config {
	return Config{
		CompileTimeout:  60 * time.Second,
		TestTimeout:     60 * time.Second,
		MutationTimeout: 300 * time.Second,
	}
}

// Measurer compiles and exercises a test suite, producing the raw
// metrics the reward function aggregates. It is shared between
// candidate scoring during refinement and the final evaluation phase.
type Measurer struct {
	runner exec.Runner
	cfg    Config
}

// NewMeasurer creates a measurer.
func NewMeasurer(runner exec.Runner, cfg Config) *Measurer {
	return &Measurer{runner: runner, cfg: cfg}
}

// Measure compiles testFile against the unit's target jar and, when it
// compiles, runs it under the coverage agent and the mutation engine.
// A suite that fails to compile yields Compiled=false with zeroed
// dynamic metrics rather than an error. workDir receives intermediate
// artifacts and must be unique per call.
func (m *Measurer) Measure(ctx context.Context, unit *models.TaskUnit, testFile, workDir string) (reward.Metrics, error) {
	var metrics reward.Metrics

	if err := os.MkdirAll(workDir, 0755); err != nil {
		return metrics, fmt.Errorf("create work dir: %w", err)
	}
	classesDir := filepath.Join(workDir, "classes")
	if err := os.MkdirAll(classesDir, 0755); err != nil {
		return metrics, fmt.Errorf("create classes dir: %w", err)
	}

	// Static metrics come first so even non-compiling candidates are
	// fully described.
	src, err := AnalyzeFile(testFile)
	if err != nil {
		return metrics, fmt.Errorf("analyze %s: %w", testFile, err)
	}
	metrics.Readability = src.ReadabilityScore()
	metrics.NormComplexity = src.NormalizedComplexity()
	metrics.NormSmells = src.NormalizedSmells()
	metrics.SmellCount = src.SmellCount
	metrics.Complexity = src.Cyclomatic

	compiled, err := m.compile(ctx, unit, testFile, classesDir)
	if err != nil {
		return metrics, err
	}
	metrics.Compiled = compiled
	if !compiled {
		return metrics, nil
	}

	testClass := testClassName(unit.ClassName, testFile)

	cov, err := m.coverage(ctx, unit, testClass, classesDir, workDir)
	if err != nil {
		logger.Printf("coverage for %s: %v", unit.ID, err)
	} else {
		metrics.Coverage = cov.Line.Ratio()
	}

	mut, err := m.mutation(ctx, unit, testClass, classesDir, workDir)
	if err != nil {
		logger.Printf("mutation testing for %s: %v", unit.ID, err)
	} else {
		metrics.MutationScore = mut.Score()
	}

	return metrics, nil
}

// compile runs javac on the suite plus any scaffolding next to it.
// Returns false on compiler rejection; only sandbox trouble is an
// error.
func (m *Measurer) compile(ctx context.Context, unit *models.TaskUnit, testFile, outDir string) (bool, error) {
	sources := []string{testFile}
	scaffolding := strings.TrimSuffix(testFile, ".java") + "_scaffolding.java"
	if _, err := os.Stat(scaffolding); err == nil {
		sources = append(sources, scaffolding)
	}

	args := []string{"-cp", m.classpath(unit, filepath.Dir(testFile)), "-d", outDir}
	args = append(args, sources...)

	out := m.runner.Execute(ctx, exec.CommandSpec{
		Name:    "javac",
		Args:    args,
		Timeout: m.cfg.CompileTimeout,
	})
	switch out.Status {
	case exec.StatusOK:
		return true, nil
	case exec.StatusNonzeroExit:
		return false, nil
	case exec.StatusTimeout:
		return false, phase.Transientf("compile timed out after %s", m.cfg.CompileTimeout)
	default:
		return false, phase.Transientf("launch compiler: %s", out.Stderr)
	}
}

func (m *Measurer) coverage(ctx context.Context, unit *models.TaskUnit, testClass, classesDir, workDir string) (CoverageReport, error) {
	execFile := filepath.Join(workDir, "jacoco.exec")
	agent := fmt.Sprintf("-javaagent:%s=destfile=%s,append=false,includes=*", m.cfg.JaCoCoAgentJar, execFile)

	out := m.runner.Execute(ctx, exec.CommandSpec{
		Name: "java",
		Args: []string{
			agent,
			"-cp", classesDir + ":" + m.classpath(unit, ""),
			"org.junit.runner.JUnitCore", testClass,
		},
		Timeout: m.cfg.TestTimeout,
	})
	// Failing tests still produce coverage data; only a missing exec
	// file means the run never got far enough.
	if _, err := os.Stat(execFile); err != nil {
		return CoverageReport{}, fmt.Errorf("no coverage data (%s)", out.Status)
	}

	reportDir := filepath.Join(workDir, "report")
	if err := os.MkdirAll(reportDir, 0755); err != nil {
		return CoverageReport{}, err
	}
	xmlPath := filepath.Join(reportDir, "jacoco.xml")

	rep := m.runner.Execute(ctx, exec.CommandSpec{
		Name: "java",
		Args: []string{
			"-jar", m.cfg.JaCoCoCLIJar,
			"report", execFile,
			"--classfiles", unit.TargetJar,
			"--sourcefiles", unit.SourceDir,
			"--xml", xmlPath,
		},
		Timeout: m.cfg.CompileTimeout,
	})
	if !rep.OK() {
		return CoverageReport{}, fmt.Errorf("report generation failed (%s)", rep.Status)
	}
	return ParseCoverageFile(xmlPath)
}

func (m *Measurer) mutation(ctx context.Context, unit *models.TaskUnit, testClass, classesDir, workDir string) (MutationReport, error) {
	reportDir := filepath.Join(workDir, "pit-report")

	sourceDir := unit.SourceDir
	if sourceDir == "" {
		sourceDir = workDir
	}

	out := m.runner.Execute(ctx, exec.CommandSpec{
		Name: "java",
		Args: []string{
			"-cp", m.cfg.PitestJar + ":" + classesDir + ":" + m.classpath(unit, ""),
			"org.pitest.mutationtest.commandline.MutationCoverageReport",
			"--reportDir", reportDir,
			"--targetClasses", unit.ClassName,
			"--targetTests", testClass,
			"--sourceDirs", sourceDir,
			"--outputFormats", "XML",
		},
		Timeout: m.cfg.MutationTimeout,
	})
	if !out.OK() {
		return MutationReport{}, fmt.Errorf("mutation run failed (%s)", out.Status)
	}
	return ParseMutationsFile(filepath.Join(reportDir, "mutations.xml"))
}

func (m *Measurer) classpath(unit *models.TaskUnit, extra string) string {
	parts := []string{unit.TargetJar, m.cfg.JUnitJar, m.cfg.EvoSuiteRuntimeJar, m.cfg.HamcrestJar}
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

// testClassName derives the fully qualified test class from the suite
// file, reusing the target class's package.
func testClassName(className, testFile string) string {
	base := strings.TrimSuffix(filepath.Base(testFile), ".java")
	idx := strings.LastIndex(className, ".")
	if idx < 0 {
		return base
	}
	return className[:idx] + "." + base
}
