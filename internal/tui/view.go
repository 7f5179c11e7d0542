package tui

import (
	"fmt"
	"strings"
)

// maxVisibleUnits bounds the unit table so the log stays on screen.
const maxVisibleUnits = 12

// View implements tea.Model.
func (d *Dashboard) View() string {
	if d.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(d.titleStyle.Render("Test Suite Refinement"))
	b.WriteString("\n\n")

	b.WriteString(d.viewProgress())
	b.WriteString("\n")
	b.WriteString(d.viewUnits())
	b.WriteString("\n")
	b.WriteString(d.viewLogs())
	b.WriteString("\n")
	b.WriteString(d.viewFooter())

	return b.String()
}

// viewProgress renders the completion bar and the unit tallies.
func (d *Dashboard) viewProgress() string {
	var b strings.Builder

	percent := 0.0
	if d.totalUnits > 0 {
		percent = float64(d.finished()) / float64(d.totalUnits)
	}

	b.WriteString(d.labelStyle.Render("Units:"))
	b.WriteString(d.valueStyle.Render(fmt.Sprintf("%d/%d", d.finished(), d.totalUnits)))
	if d.paused {
		b.WriteString("  ")
		b.WriteString(d.pausedStyle.Render("PAUSED"))
	}
	b.WriteString("\n")
	b.WriteString(d.bar.ViewAs(percent))
	b.WriteString("\n")

	b.WriteString(d.labelStyle.Render("Succeeded:"))
	b.WriteString(d.okStyle.Render(fmt.Sprintf("%d", d.succeeded)))
	b.WriteString("  ")
	b.WriteString(d.labelStyle.Render("Failed:"))
	b.WriteString(d.failStyle.Render(fmt.Sprintf("%d", d.failed)))
	b.WriteString("  ")
	b.WriteString(d.labelStyle.Render("Skipped:"))
	b.WriteString(d.skipStyle.Render(fmt.Sprintf("%d", d.skipped)))
	b.WriteString("\n")

	return b.String()
}

// viewUnits renders the table of in-flight units.
func (d *Dashboard) viewUnits() string {
	var running []*unitRow
	for _, id := range d.order {
		row := d.units[id]
		if row.state == "running" {
			running = append(running, row)
		}
	}

	if len(running) == 0 {
		if d.done {
			return d.viewDone()
		}
		return d.skipStyle.Render("  No units in flight") + "\n"
	}

	var b strings.Builder
	shown := running
	if len(shown) > maxVisibleUnits {
		shown = shown[:maxVisibleUnits]
	}
	for _, row := range shown {
		b.WriteString("  ")
		b.WriteString(d.spin.View())
		b.WriteString(" ")
		b.WriteString(d.valueStyle.Render(row.className))
		if row.phase != "" {
			b.WriteString("  ")
			b.WriteString(d.phaseStyle.Render(row.phase))
			if row.attempt > 1 {
				b.WriteString(d.skipStyle.Render(fmt.Sprintf(" (attempt %d)", row.attempt)))
			}
		}
		b.WriteString("\n")
	}
	if hidden := len(running) - len(shown); hidden > 0 {
		b.WriteString(d.skipStyle.Render(fmt.Sprintf("  ... and %d more\n", hidden)))
	}
	return b.String()
}

// viewDone renders the final run summary.
func (d *Dashboard) viewDone() string {
	var b strings.Builder
	if d.doneErr != nil {
		b.WriteString("  ")
		b.WriteString(d.failStyle.Render("✗ run aborted: " + d.doneErr.Error()))
		b.WriteString("\n")
	} else {
		b.WriteString("  ")
		b.WriteString(d.okStyle.Render(fmt.Sprintf("✓ run complete: %d succeeded, %d failed, %d skipped",
			d.report.Succeeded, d.report.Failed, d.report.Skipped)))
		b.WriteString("\n")
	}
	for _, name := range d.report.FailedUnits {
		b.WriteString("    ")
		b.WriteString(d.failStyle.Render("✗ " + name))
		b.WriteString("\n")
	}
	return b.String()
}

// viewLogs renders the most recent activity log lines.
func (d *Dashboard) viewLogs() string {
	if len(d.logs) == 0 {
		return ""
	}

	visible := 8
	start := 0
	if len(d.logs) > visible {
		start = len(d.logs) - visible
	}

	var b strings.Builder
	for _, entry := range d.logs[start:] {
		ts := entry.timestamp.Format("15:04:05")
		line := fmt.Sprintf("  %s %s", d.logTimeStyle.Render(ts), entry.message)
		if entry.level == "ERROR" {
			line = fmt.Sprintf("  %s %s", d.logTimeStyle.Render(ts), d.failStyle.Render(entry.message))
		} else if entry.level == "WARN" {
			line = fmt.Sprintf("  %s %s", d.logTimeStyle.Render(ts), d.pausedStyle.Render(entry.message))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// viewFooter renders the keyboard hints.
func (d *Dashboard) viewFooter() string {
	if d.done {
		return d.hintStyle.Render("Press q to exit")
	}
	if d.paused {
		return d.hintStyle.Render("r to resume | q to quit")
	}
	return d.hintStyle.Render("p to pause | q to quit")
}
