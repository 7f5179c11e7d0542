// Package tui provides the terminal dashboard for the run command.
//
// The dashboard is read-only: it renders unit progress across the
// pipeline phases from orchestrator events and supports pausing the
// run. Users can pause with 'p', resume with 'r', and quit with 'q'
// or Ctrl+C.
//
// Usage:
//
//	program, dash := tui.NewProgram(len(units))
//	dash.SetPauseHandlers(orch.Pause, orch.Resume)
//	go program.Run()
//
//	// Forward orchestrator events
//	for ev := range orch.Events() {
//	    program.Send(tui.EventMsg{Event: ev})
//	}
//
//	// Signal completion
//	program.Send(tui.DoneMsg{Report: report, Err: err})
//
// The dashboard renders a completion bar, the phase each active unit
// is in, and an activity log with recent events.
package tui
