package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/refinelab/refinery/internal/checkpoint"
	"github.com/refinelab/refinery/pkg/models"
)

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status <run-dir>",
	Short: "Show progress of a run",
	Long: `Display checkpointed progress for a run directory.

Shows unit counts by state and per-phase success and failure tallies.
With --watch, the display refreshes whenever the checkpoint database
changes.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "Refresh as the checkpoint database changes")
}

func runStatus(cmd *cobra.Command, args []string) error {
	runDir := args[0]
	dbPath := checkpoint.RunDBPath(runDir)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("no checkpoint database in %s; is it a run directory?", runDir)
	}

	if err := displayStatus(runDir, dbPath); err != nil {
		return err
	}
	if !statusWatch {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch checkpoint: %w", err)
	}
	defer watcher.Close()
	// Watch the directory: SQLite swaps journal files next to the db.
	if err := watcher.Add(runDir); err != nil {
		return fmt.Errorf("watch %s: %w", runDir, err)
	}

	// Debounce bursts of writes.
	var pending <-chan time.Time
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pending = time.After(500 * time.Millisecond)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		case <-pending:
			pending = nil
			fmt.Println()
			if err := displayStatus(runDir, dbPath); err != nil {
				return err
			}
		}
	}
}

func displayStatus(runDir, dbPath string) error {
	db, err := checkpoint.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open checkpoint database: %w", err)
	}
	defer db.Close()

	summary, err := db.Summarize()
	if err != nil {
		return fmt.Errorf("summarize run: %w", err)
	}

	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	faint := color.New(color.Faint)

	bold.Printf("Run: %s\n", runDir)
	fmt.Printf("Units: %d total", summary.TotalUnits)
	if n := summary.UnitsByState[models.UnitSucceeded]; n > 0 {
		fmt.Print("  ")
		green.Printf("%d succeeded", n)
	}
	if n := summary.UnitsByState[models.UnitFailed]; n > 0 {
		fmt.Print("  ")
		red.Printf("%d failed", n)
	}
	if n := summary.UnitsByState[models.UnitActive]; n > 0 {
		fmt.Print("  ")
		yellow.Printf("%d active", n)
	}
	if n := summary.UnitsByState[models.UnitSkipped]; n > 0 {
		fmt.Print("  ")
		faint.Printf("%d skipped", n)
	}
	fmt.Println()

	fmt.Println("Phases:")
	for _, p := range models.Phases {
		ok := summary.PhaseSucceeded[p]
		bad := summary.PhaseFailed[p]
		fmt.Printf("  %-13s", p)
		green.Printf("%4d ok", ok)
		if bad > 0 {
			fmt.Print("  ")
			red.Printf("%d failed", bad)
		}
		fmt.Println()
	}
	return nil
}
