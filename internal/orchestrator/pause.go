package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// PauseController manages pause/resume/stop state for the run. While
// paused, workers finish the phase attempt in flight but do not start
// the next one.
type PauseController struct {
	paused  bool
	stopped bool
	mu      sync.RWMutex
	cond    *sync.Cond
}

// NewPauseController creates a new PauseController.
func NewPauseController() *PauseController {
	p := &PauseController{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Pause pauses execution. Workers block before their next phase.
func (p *PauseController) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		log.Printf("[orchestrator] paused, no new phases will start")
	}
}

// Resume resumes execution after a pause.
func (p *PauseController) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		log.Printf("[orchestrator] resumed")
		p.cond.Broadcast()
	}
}

// Stop signals a stop. This unblocks any WaitIfPaused calls.
func (p *PauseController) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.stopped = true
		p.cond.Broadcast()
	}
}

// IsPaused returns whether execution is currently paused.
func (p *PauseController) IsPaused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// IsStopped returns whether the controller has been stopped.
func (p *PauseController) IsStopped() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stopped
}

// WaitIfPaused blocks until the run is unpaused or stopped. Returns an
// error if the context is cancelled or the controller is stopped.
func (p *PauseController) WaitIfPaused(ctx context.Context) error {
	p.mu.Lock()
	if p.paused && !p.stopped {
		// One goroutine bridges context cancellation to the condition
		// variable; spurious wakeups re-enter the wait loop without
		// spawning more.
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				p.mu.Lock()
				p.cond.Broadcast()
				p.mu.Unlock()
			case <-done:
			}
		}()

		for p.paused && !p.stopped {
			p.cond.Wait()
			if ctx.Err() != nil {
				close(done)
				p.mu.Unlock()
				return ctx.Err()
			}
		}
		close(done)
	}
	if p.stopped {
		p.mu.Unlock()
		return fmt.Errorf("run stopped")
	}
	p.mu.Unlock()
	return nil
}
