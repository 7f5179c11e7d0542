package orchestrator

import (
	"log"
	"sync/atomic"
	"time"
)

// EventEmitter is the thread-safe fan-out point for orchestrator
// events. A slow or absent subscriber must never stall the pipeline,
// so emission drops events once the buffer and a short grace period
// are exhausted.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events: make(chan Event, bufferSize),
	}
}

// Emit sends an event to the events channel. If the channel is full,
// it retries with a timeout before dropping the event.
func (e *EventEmitter) Emit(event Event) {
	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[orchestrator] event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel. Called once the run is over.
func (e *EventEmitter) Close() {
	close(e.events)
}
