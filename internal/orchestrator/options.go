package orchestrator

import (
	"time"

	"github.com/refinelab/refinery/internal/checkpoint"
	"github.com/refinelab/refinery/internal/phase"
	"github.com/refinelab/refinery/pkg/models"
)

// RequiredConfig contains the minimal required configuration for an
// Orchestrator. All fields are required and have no defaults.
type RequiredConfig struct {
	// Store is the checkpoint store for recording attempts and resume.
	Store checkpoint.Store
	// Runners are the phase implementations, one per pipeline phase.
	Runners []phase.Runner
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

type orchestratorOptions struct {
	workers     int
	maxRetries  int
	retryDelay  time.Duration
	startPhase  models.Phase
	unitLimit   int
	eventBuffer int
	logger      *DebugLogger
	finalizer   func() error
	signalDir   string
}

func defaultOptions() *orchestratorOptions {
	return &orchestratorOptions{
		workers:     4,
		maxRetries:  2,
		retryDelay:  5 * time.Second,
		startPhase:  models.PhaseBaseline,
		eventBuffer: 100,
		logger:      NopLogger(),
	}
}

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) Option {
	return func(o *orchestratorOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithMaxRetries sets how many times a transient phase failure is
// retried before the unit fails.
func WithMaxRetries(n int) Option {
	return func(o *orchestratorOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithRetryDelay sets the delay between transient retries.
func WithRetryDelay(d time.Duration) Option {
	return func(o *orchestratorOptions) { o.retryDelay = d }
}

// WithStartPhase skips every phase before the given one. Earlier
// phases must already have artifacts in the workspace.
func WithStartPhase(p models.Phase) Option {
	return func(o *orchestratorOptions) {
		if p.Valid() {
			o.startPhase = p
		}
	}
}

// WithUnitLimit caps how many units the run processes.
func WithUnitLimit(n int) Option {
	return func(o *orchestratorOptions) { o.unitLimit = n }
}

// WithEventBuffer sets the event channel buffer size.
func WithEventBuffer(n int) Option {
	return func(o *orchestratorOptions) {
		if n > 0 {
			o.eventBuffer = n
		}
	}
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *orchestratorOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithFinalizer sets the run-level aggregation hook, invoked once
// after all units finish when at least one unit succeeded.
func WithFinalizer(f func() error) Option {
	return func(o *orchestratorOptions) { o.finalizer = f }
}

// WithSignalDir enables the control-file watcher under the given run
// directory.
func WithSignalDir(runDir string) Option {
	return func(o *orchestratorOptions) { o.signalDir = runDir }
}
