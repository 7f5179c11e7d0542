package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/refinelab/refinery/internal/orchestrator"
)

// maxLogEntries caps the activity log kept in memory.
const maxLogEntries = 200

// EventMsg wraps an orchestrator event for the dashboard.
type EventMsg struct {
	Event orchestrator.Event
}

// DoneMsg signals that the run has completed.
type DoneMsg struct {
	Report orchestrator.RunReport
	Err    error
}

// LogMsg adds a free-form line to the activity log.
type LogMsg struct {
	Message string
}

// unitRow tracks one unit's position in the pipeline for display.
type unitRow struct {
	id        string
	className string
	phase     string
	attempt   int
	state     string // "running", "succeeded", "failed", "skipped"
	errText   string
}

// logEntry is one line of the activity log.
type logEntry struct {
	timestamp time.Time
	level     string
	message   string
}

// Dashboard is the bubbletea model for the run dashboard.
type Dashboard struct {
	totalUnits int
	units      map[string]*unitRow
	order      []string
	logs       []logEntry

	succeeded int
	failed    int
	skipped   int

	paused   bool
	quitting bool
	done     bool
	doneErr  error
	report   orchestrator.RunReport

	onPause  func()
	onResume func()

	width  int
	height int

	spin spinner.Model
	bar  progress.Model

	titleStyle   lipgloss.Style
	labelStyle   lipgloss.Style
	valueStyle   lipgloss.Style
	phaseStyle   lipgloss.Style
	okStyle      lipgloss.Style
	failStyle    lipgloss.Style
	skipStyle    lipgloss.Style
	pausedStyle  lipgloss.Style
	logTimeStyle lipgloss.Style
	hintStyle    lipgloss.Style
}

// New creates a Dashboard for a run over totalUnits units.
func New(totalUnits int) *Dashboard {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	b := progress.New(progress.WithDefaultGradient())
	b.Width = 40

	return &Dashboard{
		totalUnits: totalUnits,
		units:      make(map[string]*unitRow),
		spin:       s,
		bar:        b,

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")),

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(12),

		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),

		phaseStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")),

		okStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),

		failStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),

		skipStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		pausedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true),

		logTimeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// SetPauseHandlers wires the pause and resume callbacks invoked by the
// 'p' and 'r' keys.
func (d *Dashboard) SetPauseHandlers(pause, resume func()) {
	d.onPause = pause
	d.onResume = resume
}

// Init implements tea.Model.
func (d *Dashboard) Init() tea.Cmd {
	return d.spin.Tick
}

// Update implements tea.Model.
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			d.quitting = true
			return d, tea.Quit
		case "p":
			if !d.paused && !d.done {
				d.paused = true
				if d.onPause != nil {
					d.onPause()
				}
				d.addLog("WARN", "run paused")
			}
		case "r":
			if d.paused {
				d.paused = false
				if d.onResume != nil {
					d.onResume()
				}
				d.addLog("INFO", "run resumed")
			}
		}

	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		if msg.Width > 20 {
			d.bar.Width = msg.Width - 14
			if d.bar.Width > 60 {
				d.bar.Width = 60
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		d.spin, cmd = d.spin.Update(msg)
		return d, cmd

	case EventMsg:
		d.handleEvent(msg.Event)

	case DoneMsg:
		d.done = true
		d.doneErr = msg.Err
		d.report = msg.Report

	case LogMsg:
		d.addLog("INFO", msg.Message)
	}

	return d, nil
}

// handleEvent folds an orchestrator event into the display state.
func (d *Dashboard) handleEvent(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventUnitStarted:
		row := d.row(ev)
		row.state = "running"

	case orchestrator.EventUnitCompleted:
		row := d.row(ev)
		row.state = "succeeded"
		d.succeeded++
		d.addLog("INFO", ev.ClassName+" completed")

	case orchestrator.EventUnitFailed:
		row := d.row(ev)
		row.state = "failed"
		if ev.Err != nil {
			row.errText = ev.Err.Error()
		} else if ev.Message != "" {
			row.errText = ev.Message
		}
		d.failed++
		d.addLog("ERROR", ev.ClassName+" failed: "+row.errText)

	case orchestrator.EventUnitSkipped:
		row := d.row(ev)
		row.state = "skipped"
		d.skipped++

	case orchestrator.EventPhaseStarted:
		row := d.row(ev)
		row.phase = string(ev.Phase)
		row.attempt = ev.Attempt

	case orchestrator.EventPhaseCompleted:
		if ev.Message != "" {
			d.addLog("INFO", ev.ClassName+" "+string(ev.Phase)+": "+ev.Message)
		}

	case orchestrator.EventPhaseRetried:
		d.addLog("WARN", ev.ClassName+" "+string(ev.Phase)+" retrying")

	case orchestrator.EventRunDone:
		if ev.Err != nil {
			d.addLog("ERROR", "run aborted: "+ev.Err.Error())
		} else {
			d.addLog("INFO", "run finished")
		}
	}
}

// row finds or creates the display row for the event's unit.
func (d *Dashboard) row(ev orchestrator.Event) *unitRow {
	if row, ok := d.units[ev.UnitID]; ok {
		if row.className == "" {
			row.className = ev.ClassName
		}
		return row
	}
	row := &unitRow{
		id:        ev.UnitID,
		className: ev.ClassName,
		state:     "running",
	}
	d.units[ev.UnitID] = row
	d.order = append(d.order, ev.UnitID)
	return row
}

// addLog appends a log entry, trimming the oldest past the cap.
func (d *Dashboard) addLog(level, message string) {
	d.logs = append(d.logs, logEntry{
		timestamp: time.Now(),
		level:     level,
		message:   message,
	})
	if len(d.logs) > maxLogEntries {
		d.logs = d.logs[len(d.logs)-maxLogEntries:]
	}
}

// finished reports how many units have reached a terminal state.
func (d *Dashboard) finished() int {
	return d.succeeded + d.failed + d.skipped
}

// Run starts the dashboard and blocks until the user quits.
func Run(totalUnits int) error {
	dash := New(totalUnits)
	p := tea.NewProgram(dash, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// NewProgram creates a bubbletea program around a new Dashboard. The
// returned program receives messages via Send().
func NewProgram(totalUnits int) (*tea.Program, *Dashboard) {
	dash := New(totalUnits)
	p := tea.NewProgram(dash, tea.WithAltScreen())
	return p, dash
}
