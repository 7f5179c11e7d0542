package main

import (
	"context"
	"fmt"

	"github.com/refinelab/refinery/internal/orchestrator"
	"github.com/refinelab/refinery/internal/tui"
	"github.com/refinelab/refinery/pkg/models"
)

// runWithLogs drives the orchestrator headless, printing one line per
// event.
func runWithLogs(ctx context.Context, orch *orchestrator.Orchestrator, units []*models.TaskUnit) (*orchestrator.RunReport, error) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range orch.Events() {
			printEvent(ev)
		}
	}()

	report, err := orch.Run(ctx, units)
	<-done
	return report, err
}

func printEvent(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventPhaseStarted:
		fmt.Printf("[%s] %s: %s (attempt %d)\n",
			ev.Timestamp.Format("15:04:05"), ev.ClassName, ev.Phase, ev.Attempt)
	case orchestrator.EventPhaseCompleted:
		if ev.Message != "" {
			fmt.Printf("[%s] %s: %s done: %s\n",
				ev.Timestamp.Format("15:04:05"), ev.ClassName, ev.Phase, ev.Message)
		} else {
			fmt.Printf("[%s] %s: %s done\n",
				ev.Timestamp.Format("15:04:05"), ev.ClassName, ev.Phase)
		}
	case orchestrator.EventPhaseRetried:
		fmt.Printf("[%s] %s: %s failed, retrying: %v\n",
			ev.Timestamp.Format("15:04:05"), ev.ClassName, ev.Phase, ev.Err)
	case orchestrator.EventUnitCompleted:
		fmt.Printf("[%s] %s: completed\n",
			ev.Timestamp.Format("15:04:05"), ev.ClassName)
	case orchestrator.EventUnitFailed:
		detail := ev.Message
		if ev.Err != nil {
			detail = ev.Err.Error()
		}
		fmt.Printf("[%s] %s: FAILED: %s\n",
			ev.Timestamp.Format("15:04:05"), ev.ClassName, detail)
	case orchestrator.EventUnitSkipped:
		fmt.Printf("[%s] %s: already complete, skipping\n",
			ev.Timestamp.Format("15:04:05"), ev.ClassName)
	case orchestrator.EventRunDone:
		if ev.Err != nil {
			fmt.Printf("[%s] run aborted: %v\n",
				ev.Timestamp.Format("15:04:05"), ev.Err)
		}
	}
}

// runWithDashboard drives the orchestrator behind the TUI dashboard.
// The dashboard owns the terminal until the user quits; quitting
// mid-run cancels the run, which checkpoints for a later resume.
func runWithDashboard(ctx context.Context, cancel context.CancelFunc, orch *orchestrator.Orchestrator, units []*models.TaskUnit) (*orchestrator.RunReport, error) {
	program, dash := tui.NewProgram(len(units))
	dash.SetPauseHandlers(orch.Pause, orch.Resume)

	type result struct {
		report *orchestrator.RunReport
		err    error
	}
	resultCh := make(chan result, 1)

	go func() {
		for ev := range orch.Events() {
			program.Send(tui.EventMsg{Event: ev})
		}
	}()

	go func() {
		report, err := orch.Run(ctx, units)
		resultCh <- result{report, err}
		var rep orchestrator.RunReport
		if report != nil {
			rep = *report
		}
		program.Send(tui.DoneMsg{Report: rep, Err: err})
	}()

	if _, err := program.Run(); err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	cancel()
	res := <-resultCh
	return res.report, res.err
}
