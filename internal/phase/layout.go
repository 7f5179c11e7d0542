package phase

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/refinelab/refinery/pkg/models"
)

// Workspace maps units and phases onto the run directory. Every phase
// writes its artifacts under its own subdirectory so attempts can be
// inspected after the run.
type Workspace struct {
	Root string
}

// UnitDir returns the directory holding all artifacts for a unit.
func (w Workspace) UnitDir(unitID string) string {
	return filepath.Join(w.Root, "units", unitID)
}

// Dir returns the artifact directory for a unit's phase, creating it
// if needed.
func (w Workspace) Dir(unitID string, p models.Phase) (string, error) {
	dir := filepath.Join(w.UnitDir(unitID), string(p))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// BaselineTest returns the path of the generated baseline suite for a
// unit.
func (w Workspace) BaselineTest(unit *models.TaskUnit) string {
	return filepath.Join(w.UnitDir(unit.ID), string(models.PhaseBaseline), "evosuite-tests",
		ClassDir(unit.ClassName), SimpleName(unit.ClassName)+"_ESTest.java")
}

// BaselineScaffolding returns the scaffolding companion of the
// baseline suite.
func (w Workspace) BaselineScaffolding(unit *models.TaskUnit) string {
	return filepath.Join(w.UnitDir(unit.ID), string(models.PhaseBaseline), "evosuite-tests",
		ClassDir(unit.ClassName), SimpleName(unit.ClassName)+"_ESTest_scaffolding.java")
}

// RefinedTest returns the path the refinement phase writes its best
// candidate to.
func (w Workspace) RefinedTest(unit *models.TaskUnit) string {
	return filepath.Join(w.UnitDir(unit.ID), string(models.PhaseRefinement),
		SimpleName(unit.ClassName)+"_ESTest.java")
}

// ClassDir returns the package-relative directory for a fully
// qualified class name, e.g. "org/apache/commons/lang3" for
// org.apache.commons.lang3.StringUtils.
func ClassDir(className string) string {
	idx := strings.LastIndex(className, ".")
	if idx < 0 {
		return "."
	}
	return strings.ReplaceAll(className[:idx], ".", string(filepath.Separator))
}

// SimpleName returns the unqualified class name.
func SimpleName(className string) string {
	idx := strings.LastIndex(className, ".")
	if idx < 0 {
		return className
	}
	return className[idx+1:]
}
