package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/refinelab/refinery/internal/analysis"
	"github.com/refinelab/refinery/internal/baseline"
	"github.com/refinelab/refinery/internal/checkpoint"
	"github.com/refinelab/refinery/internal/config"
	"github.com/refinelab/refinery/internal/evaluate"
	"github.com/refinelab/refinery/internal/exec"
	"github.com/refinelab/refinery/internal/inventory"
	"github.com/refinelab/refinery/internal/orchestrator"
	"github.com/refinelab/refinery/internal/phase"
	"github.com/refinelab/refinery/internal/policy"
	"github.com/refinelab/refinery/internal/refine"
	"github.com/refinelab/refinery/internal/repair"
	"github.com/refinelab/refinery/internal/verify"
	"github.com/refinelab/refinery/pkg/models"
)

var (
	runManifest string
	runDir      string
	runResume   string
	runLimit    int
	runPhase    string
	runWorkers  int
	runHeadless bool
	runNoRepair bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the refinement pipeline over a manifest",
	Long: `Run the refinement pipeline over the classes listed in a manifest.

A fresh run creates a timestamped directory under the configured runs
directory and checkpoints progress there. Use --resume with an existing
run directory to continue an interrupted run: completed phases are
skipped and failed units stay failed.

Examples:
  refinery run --manifest manifest.yaml
  refinery run --manifest manifest.yaml --limit 10 --workers 8
  refinery run --manifest manifest.yaml --resume runs/run-20260831-120000
  refinery run --manifest manifest.yaml --phase evaluation --resume runs/run-20260831-120000`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVar(&runManifest, "manifest", "manifest.yaml", "Path to the run manifest")
	runCmd.Flags().StringVar(&runDir, "run-dir", "", "Run directory to create (default: <runs_dir>/run-<timestamp>)")
	runCmd.Flags().StringVar(&runResume, "resume", "", "Existing run directory to resume")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "Process at most this many units (0 = all)")
	runCmd.Flags().StringVar(&runPhase, "phase", "", "Start at this phase, skipping earlier ones")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Concurrent unit workers (default from config)")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "Run without the TUI dashboard")
	runCmd.Flags().BoolVar(&runNoRepair, "no-repair", false, "Disable LLM repair of non-compiling refined suites")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	if err := CheckJavaToolchain(); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runWorkers > 0 {
		cfg.Run.Workers = runWorkers
	}

	manifest, err := inventory.Load(runManifest)
	if err != nil {
		return err
	}
	units := manifest.Units(runLimit)
	if len(units) == 0 {
		return fmt.Errorf("manifest %s lists no classes", runManifest)
	}

	dir, err := resolveRunDir(cfg)
	if err != nil {
		return err
	}

	db, err := checkpoint.Open(checkpoint.RunDBPath(dir))
	if err != nil {
		return fmt.Errorf("open checkpoint database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate checkpoint database: %w", err)
	}

	ws := phase.Workspace{Root: dir}
	runner := exec.NewRunner()
	measurer := evaluate.NewMeasurer(runner, cfg.Evaluate)

	policyClient, err := policy.NewClient(cfg.Policy)
	if err != nil {
		return fmt.Errorf("policy server client: %w", err)
	}

	refiner, err := refine.NewRefiner(policyClient, runner, measurer, ws, cfg.Refine)
	if err != nil {
		return fmt.Errorf("refiner: %w", err)
	}

	var fixer repair.Fixer
	if !runNoRepair && cfg.Verify.RepairAttempts > 0 {
		client, err := repair.NewClient(cfg.Repair)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: repair disabled: %v\n", err)
		} else {
			fixer = client
		}
	}

	analyzer := analysis.NewAnalyzer(measurer, ws)
	runners := []phase.Runner{
		baseline.NewGenerator(runner, ws, cfg.Baseline),
		refiner,
		verify.NewVerifier(runner, fixer, ws, cfg.Verify),
		evaluate.NewEvaluator(measurer, ws, cfg.Refine.Weights, cfg.Refine.PenaltyFloor),
		analyzer,
	}

	opts := []orchestrator.Option{
		orchestrator.WithWorkers(cfg.Run.Workers),
		orchestrator.WithMaxRetries(cfg.Run.MaxRetries),
		orchestrator.WithRetryDelay(cfg.Run.RetryDelay),
		orchestrator.WithLogger(orchestrator.NewDebugLoggerForRun(dir)),
		orchestrator.WithSignalDir(dir),
		orchestrator.WithFinalizer(func() error {
			_, err := analyzer.Finalize()
			return err
		}),
	}
	if runPhase != "" {
		p := models.Phase(runPhase)
		if !p.Valid() {
			return fmt.Errorf("unknown phase %q (valid: %v)", runPhase, models.Phases)
		}
		opts = append(opts, orchestrator.WithStartPhase(p))
	}

	orch, err := orchestrator.New(orchestrator.RequiredConfig{
		Store:   db,
		Runners: runners,
	}, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived interrupt, checkpointing and shutting down...")
		cancel()
	}()

	fmt.Printf("Run directory: %s\n", dir)
	fmt.Printf("Units: %d  Workers: %d\n", len(units), cfg.Run.Workers)

	var report *orchestrator.RunReport
	var runErr error
	if runHeadless {
		report, runErr = runWithLogs(ctx, orch, units)
	} else {
		report, runErr = runWithDashboard(ctx, cancel, orch, units)
	}
	if runErr != nil {
		return runErr
	}

	fmt.Printf("Run complete: %d succeeded, %d failed, %d skipped (of %d)\n",
		report.Succeeded, report.Failed, report.Skipped, report.Total)
	for _, name := range report.FailedUnits {
		fmt.Printf("  failed: %s\n", name)
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d units failed", report.Failed, report.Total)
	}
	return nil
}

// resolveRunDir picks or creates the run directory.
func resolveRunDir(cfg *config.Config) (string, error) {
	if runResume != "" {
		info, err := os.Stat(runResume)
		if err != nil || !info.IsDir() {
			return "", fmt.Errorf("resume directory %s does not exist", runResume)
		}
		return runResume, nil
	}

	dir := runDir
	if dir == "" {
		dir = filepath.Join(cfg.Run.RunsDir, "run-"+time.Now().Format("20060102-150405"))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create run directory: %w", err)
	}
	return dir, nil
}
