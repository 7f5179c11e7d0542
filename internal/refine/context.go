package refine

import (
	"context"
	"time"

	"github.com/refinelab/refinery/internal/exec"
	"github.com/refinelab/refinery/pkg/models"
)

// extractContext pulls the public signature of the class under test
// out of the target jar with javap. Refinement works without it, so
// failures degrade to an empty context.
func extractContext(ctx context.Context, runner exec.Runner, unit *models.TaskUnit) string {
	out := runner.Execute(ctx, exec.CommandSpec{
		Name:    "javap",
		Args:    []string{"-cp", unit.TargetJar, "-public", unit.ClassName},
		Timeout: 30 * time.Second,
	})
	if !out.OK() {
		return ""
	}
	return out.Stdout
}
