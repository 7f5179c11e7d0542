package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPauseControllerPassesWhenNotPaused(t *testing.T) {
	p := NewPauseController()
	if err := p.WaitIfPaused(context.Background()); err != nil {
		t.Errorf("WaitIfPaused() error = %v, want nil", err)
	}
}

func TestPauseControllerBlocksUntilResume(t *testing.T) {
	p := NewPauseController()
	p.Pause()
	if !p.IsPaused() {
		t.Fatal("IsPaused() = false after Pause()")
	}

	released := make(chan error, 1)
	var started sync.WaitGroup
	started.Add(1)
	go func() {
		started.Done()
		released <- p.WaitIfPaused(context.Background())
	}()
	started.Wait()

	select {
	case <-released:
		t.Fatal("WaitIfPaused returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	p.Resume()
	select {
	case err := <-released:
		if err != nil {
			t.Errorf("WaitIfPaused() error = %v after resume", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused did not return after resume")
	}
}

func TestPauseControllerStopUnblocks(t *testing.T) {
	p := NewPauseController()
	p.Pause()

	released := make(chan error, 1)
	go func() {
		released <- p.WaitIfPaused(context.Background())
	}()

	p.Stop()
	select {
	case err := <-released:
		if err == nil {
			t.Error("WaitIfPaused() error = nil after Stop, want error")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused did not return after stop")
	}
}

func TestPauseControllerContextCancel(t *testing.T) {
	p := NewPauseController()
	p.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	released := make(chan error, 1)
	go func() {
		released <- p.WaitIfPaused(ctx)
	}()

	cancel()
	select {
	case err := <-released:
		if err == nil {
			t.Error("WaitIfPaused() error = nil after cancel, want error")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused did not return after context cancel")
	}
}

func TestEventEmitterDropsWhenFull(t *testing.T) {
	e := NewEventEmitter(1)
	e.Emit(Event{Type: EventUnitStarted})
	// Second emit has no reader and a full buffer; it must drop
	// rather than block forever.
	doneCh := make(chan struct{})
	go func() {
		e.Emit(Event{Type: EventUnitStarted})
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full channel")
	}
	if e.DroppedCount() != 1 {
		t.Errorf("DroppedCount() = %d, want 1", e.DroppedCount())
	}
}
