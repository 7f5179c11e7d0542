package evaluate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/refinelab/refinery/internal/exec"
	"github.com/refinelab/refinery/internal/phase"
	"github.com/refinelab/refinery/pkg/models"
)

// toolRunner emulates the Java toolchain: it materializes the files
// each tool would leave behind and returns scripted outcomes.
type toolRunner struct {
	compileStatus exec.Status
	coverageXML   string
	mutationsXML  string
	specs         []exec.CommandSpec
}

func (r *toolRunner) Execute(_ context.Context, spec exec.CommandSpec) exec.Outcome {
	r.specs = append(r.specs, spec)
	args := strings.Join(spec.Args, " ")

	switch {
	case spec.Name == "javac":
		if r.compileStatus == exec.StatusNonzeroExit {
			return exec.Outcome{Status: exec.StatusNonzeroExit, ExitCode: 1, Stderr: "error: cannot find symbol"}
		}
		return exec.Outcome{Status: r.compileStatus}

	case strings.Contains(args, "-javaagent:"):
		for _, a := range spec.Args {
			if strings.HasPrefix(a, "-javaagent:") {
				for _, opt := range strings.Split(a, ",") {
					if i := strings.Index(opt, "destfile="); i >= 0 {
						os.WriteFile(opt[i+len("destfile="):], []byte("exec"), 0644)
					}
				}
			}
		}
		return exec.Outcome{Status: exec.StatusOK}

	case strings.Contains(args, "MutationCoverageReport"):
		for i, a := range spec.Args {
			if a == "--reportDir" && i+1 < len(spec.Args) {
				os.MkdirAll(spec.Args[i+1], 0755)
				os.WriteFile(filepath.Join(spec.Args[i+1], "mutations.xml"), []byte(r.mutationsXML), 0644)
			}
		}
		return exec.Outcome{Status: exec.StatusOK}

	case strings.Contains(args, "report"):
		for i, a := range spec.Args {
			if a == "--xml" && i+1 < len(spec.Args) {
				os.WriteFile(spec.Args[i+1], []byte(r.coverageXML), 0644)
			}
		}
		return exec.Outcome{Status: exec.StatusOK}
	}
	return exec.Outcome{Status: exec.StatusOK}
}

func measureFixture(t *testing.T) (*models.TaskUnit, string, string) {
	t.Helper()
	root := t.TempDir()

	testFile := filepath.Join(root, "Foo_ESTest.java")
	if err := os.WriteFile(testFile, []byte(sampleTest), 0644); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	unit := &models.TaskUnit{
		ID:        "unit-1",
		Project:   "sample",
		ClassName: "org.example.Foo",
		TargetJar: filepath.Join(root, "sut.jar"),
		SourceDir: root,
	}
	return unit, testFile, filepath.Join(root, "work")
}

func TestMeasureFullPipeline(t *testing.T) {
	unit, testFile, workDir := measureFixture(t)
	runner := &toolRunner{
		compileStatus: exec.StatusOK,
		coverageXML:   sampleJaCoCo,
		mutationsXML:  samplePit,
	}
	m := NewMeasurer(runner, DefaultConfig())

	got, err := m.Measure(context.Background(), unit, testFile, workDir)
	if err != nil {
		t.Fatalf("Measure() error = %v", err)
	}
	if !got.Compiled {
		t.Error("Compiled = false, want true")
	}
	if got.Coverage != 0.8 {
		t.Errorf("Coverage = %f, want 0.8", got.Coverage)
	}
	if got.MutationScore != 0.5 {
		t.Errorf("MutationScore = %f, want 0.5", got.MutationScore)
	}
	if got.SmellCount != 3 {
		t.Errorf("SmellCount = %d, want 3", got.SmellCount)
	}
	if got.Readability <= 0 {
		t.Errorf("Readability = %f, want > 0", got.Readability)
	}

	// The JUnit run targets the package-qualified suite class.
	var sawTestClass bool
	for _, spec := range runner.specs {
		for _, a := range spec.Args {
			if a == "org.example.Foo_ESTest" {
				sawTestClass = true
			}
		}
	}
	if !sawTestClass {
		t.Error("JUnit run did not reference org.example.Foo_ESTest")
	}
}

func TestMeasureCompileFailure(t *testing.T) {
	unit, testFile, workDir := measureFixture(t)
	runner := &toolRunner{compileStatus: exec.StatusNonzeroExit}
	m := NewMeasurer(runner, DefaultConfig())

	got, err := m.Measure(context.Background(), unit, testFile, workDir)
	if err != nil {
		t.Fatalf("Measure() error = %v (compile rejection is data, not an error)", err)
	}
	if got.Compiled {
		t.Error("Compiled = true, want false")
	}
	if got.Coverage != 0 || got.MutationScore != 0 {
		t.Error("dynamic metrics should stay zero when compilation fails")
	}
	// Static metrics are still recorded.
	if got.SmellCount != 3 {
		t.Errorf("SmellCount = %d, want 3", got.SmellCount)
	}

	// Only javac should have run.
	if len(runner.specs) != 1 {
		t.Errorf("commands run = %d, want 1", len(runner.specs))
	}
}

func TestMeasureCompileTimeoutIsTransient(t *testing.T) {
	unit, testFile, workDir := measureFixture(t)
	runner := &toolRunner{compileStatus: exec.StatusTimeout}
	m := NewMeasurer(runner, DefaultConfig())

	_, err := m.Measure(context.Background(), unit, testFile, workDir)
	if err == nil {
		t.Fatal("Measure() should fail on compile timeout")
	}
	if got := phase.Classify(err); got != phase.ClassTransient {
		t.Errorf("Classify() = %v, want transient", got)
	}
}

func TestMeasureMissingTestFile(t *testing.T) {
	unit, _, workDir := measureFixture(t)
	m := NewMeasurer(&toolRunner{}, DefaultConfig())

	if _, err := m.Measure(context.Background(), unit, filepath.Join(workDir, "gone.java"), workDir); err == nil {
		t.Error("Measure() of missing suite should fail")
	}
}

func TestMeasureIncludesScaffolding(t *testing.T) {
	unit, testFile, workDir := measureFixture(t)
	scaffolding := strings.TrimSuffix(testFile, ".java") + "_scaffolding.java"
	if err := os.WriteFile(scaffolding, []byte("public class Foo_ESTest_scaffolding {}\n"), 0644); err != nil {
		t.Fatalf("write scaffolding: %v", err)
	}

	runner := &toolRunner{compileStatus: exec.StatusOK, coverageXML: sampleJaCoCo, mutationsXML: samplePit}
	m := NewMeasurer(runner, DefaultConfig())
	if _, err := m.Measure(context.Background(), unit, testFile, workDir); err != nil {
		t.Fatalf("Measure() error = %v", err)
	}

	compileArgs := strings.Join(runner.specs[0].Args, " ")
	if !strings.Contains(compileArgs, scaffolding) {
		t.Errorf("compile args missing scaffolding: %s", compileArgs)
	}
}

func TestTestClassName(t *testing.T) {
	tests := []struct {
		className string
		testFile  string
		want      string
	}{
		{"org.example.Foo", "/x/Foo_ESTest.java", "org.example.Foo_ESTest"},
		{"Foo", "/x/Foo_ESTest.java", "Foo_ESTest"},
	}
	for _, tt := range tests {
		if got := testClassName(tt.className, tt.testFile); got != tt.want {
			t.Errorf("testClassName(%q, %q) = %q, want %q", tt.className, tt.testFile, got, tt.want)
		}
	}
}
