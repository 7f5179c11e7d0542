package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/refinelab/refinery/internal/checkpoint"
	"github.com/refinelab/refinery/internal/phase"
	"github.com/refinelab/refinery/pkg/models"
)

// RunReport summarizes one orchestrator run.
type RunReport struct {
	// Total is how many units the run took on.
	Total int
	// Succeeded is how many units finished every phase.
	Succeeded int
	// Failed is how many units failed a phase and stopped.
	Failed int
	// Skipped is how many units were already complete on resume.
	Skipped int
	// FailedUnits lists the class names of failed units.
	FailedUnits []string
}

// unitResult is the terminal outcome of processing one unit.
type unitResult int

const (
	unitSucceeded unitResult = iota
	unitFailed
	unitSkipped
	unitAborted
)

// Orchestrator runs task units through the pipeline phases with a
// bounded worker pool. Phases within a unit are strictly sequential;
// units are independent of each other.
type Orchestrator struct {
	store   checkpoint.Store
	runners map[models.Phase]phase.Runner
	opts    *orchestratorOptions

	emitter   *EventEmitter
	pauseCtrl *PauseController
	logger    *DebugLogger

	fatalOnce sync.Once
	fatalErr  error
	cancelRun context.CancelFunc
}

// New creates an Orchestrator.
func New(req RequiredConfig, opts ...Option) (*Orchestrator, error) {
	if req.Store == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if len(req.Runners) == 0 {
		return nil, fmt.Errorf("at least one phase runner is required")
	}

	runners := make(map[models.Phase]phase.Runner, len(req.Runners))
	for _, r := range req.Runners {
		if _, dup := runners[r.Phase()]; dup {
			return nil, fmt.Errorf("duplicate runner for phase %s", r.Phase())
		}
		runners[r.Phase()] = r
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	return &Orchestrator{
		store:     req.Store,
		runners:   runners,
		opts:      options,
		emitter:   NewEventEmitter(options.eventBuffer),
		pauseCtrl: NewPauseController(),
		logger:    options.logger,
	}, nil
}

// Events returns the channel for receiving run events.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// DroppedEventCount returns how many events were dropped on emission.
func (o *Orchestrator) DroppedEventCount() uint64 {
	return o.emitter.DroppedCount()
}

// Pause pauses the run; workers block before their next phase.
func (o *Orchestrator) Pause() { o.pauseCtrl.Pause() }

// Resume resumes a paused run.
func (o *Orchestrator) Resume() { o.pauseCtrl.Resume() }

// Run processes the units and blocks until the run finishes. It is a
// one-shot call: the event channel closes when it returns. A fatal
// error aborts the whole run; unit-level failures do not.
func (o *Orchestrator) Run(ctx context.Context, units []*models.TaskUnit) (*RunReport, error) {
	if o.opts.unitLimit > 0 && len(units) > o.opts.unitLimit {
		units = units[:o.opts.unitLimit]
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.cancelRun = cancel

	if o.opts.signalDir != "" {
		watcher, err := NewSignalWatcher(o.opts.signalDir, o.pauseCtrl, cancel)
		if err != nil {
			o.logger.Log("signal watcher unavailable: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	report := &RunReport{Total: len(units)}
	var reportMu sync.Mutex

	jobs := make(chan *models.TaskUnit)
	var wg sync.WaitGroup
	for i := 0; i < o.opts.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for unit := range jobs {
				o.logger.Log("worker %d: unit %s (%s)", worker, unit.ID, unit.ClassName)
				result := o.processUnit(ctx, unit)

				reportMu.Lock()
				switch result {
				case unitSucceeded:
					report.Succeeded++
				case unitFailed:
					report.Failed++
					report.FailedUnits = append(report.FailedUnits, unit.ClassName)
				case unitSkipped:
					report.Skipped++
				}
				reportMu.Unlock()
			}
		}(i)
	}

feed:
	for _, unit := range units {
		select {
		case jobs <- unit:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	defer o.emitter.Close()

	if o.fatalErr != nil {
		o.emitter.Emit(Event{Type: EventRunDone, Err: o.fatalErr, Timestamp: time.Now()})
		return report, o.fatalErr
	}
	if err := ctx.Err(); err != nil {
		o.emitter.Emit(Event{Type: EventRunDone, Err: err, Timestamp: time.Now()})
		return report, err
	}

	if o.opts.finalizer != nil && report.Succeeded > 0 {
		if err := o.opts.finalizer(); err != nil {
			o.emitter.Emit(Event{Type: EventRunDone, Err: err, Timestamp: time.Now()})
			return report, fmt.Errorf("finalize run: %w", err)
		}
	}

	o.emitter.Emit(Event{
		Type:      EventRunDone,
		Message:   fmt.Sprintf("%d succeeded, %d failed, %d skipped", report.Succeeded, report.Failed, report.Skipped),
		Timestamp: time.Now(),
	})
	return report, nil
}

// processUnit takes one unit through its remaining phases.
func (o *Orchestrator) processUnit(ctx context.Context, unit *models.TaskUnit) unitResult {
	if err := o.ensureUnit(unit); err != nil {
		o.fatal(fmt.Errorf("checkpoint unit %s: %w", unit.ID, err))
		return unitAborted
	}

	switch unit.State {
	case models.UnitSucceeded, models.UnitSkipped:
		o.emitter.Emit(Event{Type: EventUnitSkipped, UnitID: unit.ID, ClassName: unit.ClassName, Timestamp: time.Now()})
		return unitSkipped
	case models.UnitFailed:
		// A failed unit stays failed across resumes; rerunning it
		// takes a fresh run directory.
		o.emitter.Emit(Event{Type: EventUnitFailed, UnitID: unit.ID, ClassName: unit.ClassName, Message: "previously failed; not retried", Timestamp: time.Now()})
		return unitFailed
	}

	o.emitter.Emit(Event{Type: EventUnitStarted, UnitID: unit.ID, ClassName: unit.ClassName, Timestamp: time.Now()})

	for _, ph := range models.Phases {
		if ph.Index() < o.opts.startPhase.Index() {
			continue
		}

		done, err := o.store.HasSucceeded(unit.ID, ph)
		if err != nil {
			o.fatal(fmt.Errorf("checkpoint lookup for %s/%s: %w", unit.ID, ph, err))
			return unitAborted
		}
		if done {
			o.emitter.Emit(Event{Type: EventPhaseSkipped, UnitID: unit.ID, ClassName: unit.ClassName, Phase: ph, Timestamp: time.Now()})
			continue
		}

		if err := o.pauseCtrl.WaitIfPaused(ctx); err != nil {
			return unitAborted
		}

		if err := o.advanceUnit(unit, ph); err != nil {
			o.fatal(err)
			return unitAborted
		}

		if err := o.runPhase(ctx, unit, ph); err != nil {
			if ctx.Err() != nil {
				return unitAborted
			}
			if phase.Classify(err) == phase.ClassFatal {
				o.markFailed(unit, err)
				o.fatal(fmt.Errorf("phase %s for %s: %w", ph, unit.ClassName, err))
				return unitAborted
			}
			// Rejections and exhausted retries fail this unit only.
			o.markFailed(unit, err)
			return unitFailed
		}
	}

	o.markSucceeded(unit)
	return unitSucceeded
}

// runPhase runs one phase with transient-failure retries, recording
// every attempt in the checkpoint store.
func (o *Orchestrator) runPhase(ctx context.Context, unit *models.TaskUnit, ph models.Phase) error {
	runner := o.runners[ph]
	if runner == nil {
		return fmt.Errorf("no runner registered for phase %s", ph)
	}

	for attempt := 1; ; attempt++ {
		o.emitter.Emit(Event{Type: EventPhaseStarted, UnitID: unit.ID, ClassName: unit.ClassName, Phase: ph, Attempt: attempt, Timestamp: time.Now()})
		started := time.Now()

		outcome, err := runner.Run(ctx, unit)
		if ctx.Err() != nil {
			// An interrupted attempt leaves no record; the phase just
			// reruns on resume.
			return ctx.Err()
		}

		rec := &checkpoint.PhaseRecord{
			UnitID:     unit.ID,
			Phase:      ph,
			StartedAt:  started,
			FinishedAt: time.Now(),
		}

		if err == nil {
			rec.Status = models.StatusSucceeded
			detail := ""
			if outcome != nil {
				rec.ArtifactRef = outcome.ArtifactRef
				detail = outcome.Detail
			}
			if rerr := o.store.RecordAttempt(rec); rerr != nil {
				return fmt.Errorf("record attempt: %w", rerr)
			}
			o.emitter.Emit(Event{Type: EventPhaseCompleted, UnitID: unit.ID, ClassName: unit.ClassName, Phase: ph, Attempt: attempt, Message: detail, Timestamp: time.Now()})
			o.logger.Log("unit %s: phase %s succeeded (attempt %d) %s", unit.ID, ph, attempt, detail)
			return nil
		}

		rec.Status = models.StatusFailed
		rec.Error = err.Error()
		if rerr := o.store.RecordAttempt(rec); rerr != nil {
			return fmt.Errorf("record attempt: %w", rerr)
		}
		o.logger.Log("unit %s: phase %s attempt %d failed (%s): %v", unit.ID, ph, attempt, phase.Classify(err), err)

		if phase.Classify(err) == phase.ClassTransient && attempt <= o.opts.maxRetries {
			o.emitter.Emit(Event{Type: EventPhaseRetried, UnitID: unit.ID, ClassName: unit.ClassName, Phase: ph, Attempt: attempt, Err: err, Timestamp: time.Now()})
			select {
			case <-time.After(o.opts.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		return err
	}
}

// ensureUnit loads the unit's checkpoint row, creating it on first
// sight, and adopts the stored lifecycle state.
func (o *Orchestrator) ensureUnit(unit *models.TaskUnit) error {
	stored, err := o.store.GetUnit(unit.ID)
	if err != nil {
		return err
	}
	if stored == nil {
		return o.store.CreateUnit(unit)
	}
	unit.State = stored.State
	unit.CurrentPhase = stored.CurrentPhase
	unit.RetryCount = stored.RetryCount
	return nil
}

func (o *Orchestrator) advanceUnit(unit *models.TaskUnit, ph models.Phase) error {
	unit.CurrentPhase = ph
	if err := o.store.UpdateUnit(unit); err != nil {
		return fmt.Errorf("update unit %s: %w", unit.ID, err)
	}
	return nil
}

func (o *Orchestrator) markSucceeded(unit *models.TaskUnit) {
	now := time.Now()
	unit.State = models.UnitSucceeded
	unit.CompletedAt = &now
	if err := o.store.UpdateUnit(unit); err != nil {
		o.logger.Log("update unit %s: %v", unit.ID, err)
	}
	o.emitter.Emit(Event{Type: EventUnitCompleted, UnitID: unit.ID, ClassName: unit.ClassName, Timestamp: now})
}

func (o *Orchestrator) markFailed(unit *models.TaskUnit, cause error) {
	now := time.Now()
	unit.State = models.UnitFailed
	unit.LastError = cause.Error()
	unit.CompletedAt = &now
	if err := o.store.UpdateUnit(unit); err != nil {
		o.logger.Log("update unit %s: %v", unit.ID, err)
	}
	o.emitter.Emit(Event{Type: EventUnitFailed, UnitID: unit.ID, ClassName: unit.ClassName, Err: cause, Timestamp: now})
}

// fatal records the first fatal error and cancels the run.
func (o *Orchestrator) fatal(err error) {
	o.fatalOnce.Do(func() {
		o.fatalErr = err
		o.logger.Log("FATAL: %v", err)
		if o.cancelRun != nil {
			o.cancelRun()
		}
	})
}
