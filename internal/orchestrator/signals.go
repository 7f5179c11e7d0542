package orchestrator

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Signal file names recognized in the run's signals directory.
const (
	signalPause  = "pause"
	signalResume = "resume"
	signalAbort  = "abort"
)

// SignalWatcher reacts to control files dropped into the run's
// signals directory: touching "pause" pauses the run, "resume" (or
// removing "pause") resumes it, and "abort" stops it. This lets an
// operator steer a long run without holding its terminal.
type SignalWatcher struct {
	dir     string
	ctrl    *PauseController
	abort   func()
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewSignalWatcher creates and starts a watcher on runDir/signals.
// A watcher that cannot start is not fatal to the run; the error is
// returned so the caller can log it.
func NewSignalWatcher(runDir string, ctrl *PauseController, abort func()) (*SignalWatcher, error) {
	dir := filepath.Join(runDir, "signals")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	sw := &SignalWatcher{
		dir:     dir,
		ctrl:    ctrl,
		abort:   abort,
		watcher: watcher,
		done:    make(chan struct{}),
	}

	// A pause file left over from a previous run still counts.
	if _, err := os.Stat(filepath.Join(dir, signalPause)); err == nil {
		ctrl.Pause()
	}

	go sw.watch()
	return sw, nil
}

// Dir returns the watched signals directory.
func (sw *SignalWatcher) Dir() string {
	return sw.dir
}

func (sw *SignalWatcher) watch() {
	for {
		select {
		case <-sw.done:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			sw.handle(event)
		case <-sw.watcher.Errors:
			// Keep watching.
		}
	}
}

func (sw *SignalWatcher) handle(event fsnotify.Event) {
	created := event.Op&(fsnotify.Create|fsnotify.Write) != 0
	removed := event.Op&fsnotify.Remove != 0

	switch filepath.Base(event.Name) {
	case signalPause:
		if created {
			sw.ctrl.Pause()
		} else if removed {
			sw.ctrl.Resume()
		}
	case signalResume:
		if created {
			sw.ctrl.Resume()
			os.Remove(filepath.Join(sw.dir, signalPause))
			os.Remove(event.Name)
		}
	case signalAbort:
		if created {
			sw.ctrl.Stop()
			if sw.abort != nil {
				sw.abort()
			}
		}
	}
}

// Close stops the watcher.
func (sw *SignalWatcher) Close() error {
	close(sw.done)
	return sw.watcher.Close()
}
