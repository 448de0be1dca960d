package orchestrator

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/conductor/internal/logging"
)

// emitTimeout is how long Emit waits on a full buffer before dropping.
const emitTimeout = 100 * time.Millisecond

// EventEmitter fans orchestration events out to one reader over a buffered
// channel. Emit never blocks for long: a slow reader loses events rather
// than stalling runs. The nil *EventEmitter discards everything.
type EventEmitter struct {
	ch      chan Event
	dropped atomic.Uint64
	logger  *slog.Logger

	// mu guards closed; Emit holds it shared so Close cannot close ch mid-send.
	mu     sync.RWMutex
	closed bool
}

// NewEventEmitter returns an emitter buffering up to size events.
func NewEventEmitter(size int, logger *slog.Logger) *EventEmitter {
	return &EventEmitter{
		ch:     make(chan Event, size),
		logger: logging.OrDiscard(logger),
	}
}

// Emit stamps ev and queues it. Events emitted after Close are discarded.
func (e *EventEmitter) Emit(ev Event) {
	if e == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	select {
	case e.ch <- ev:
		return
	default:
	}

	t := time.NewTimer(emitTimeout)
	defer t.Stop()
	select {
	case e.ch <- ev:
	case <-t.C:
		e.drop(ev)
	}
}

func (e *EventEmitter) drop(ev Event) {
	n := e.dropped.Add(1)
	// One warning per ten drops keeps a stuck reader from flooding the log.
	if n%10 == 1 {
		e.logger.Warn("event buffer full, dropping", "type", ev.Type, "dropped", n)
	}
}

// DroppedCount is how many events were discarded because the buffer stayed full.
func (e *EventEmitter) DroppedCount() uint64 {
	if e == nil {
		return 0
	}
	return e.dropped.Load()
}

// Events is the read side. It is closed by Close.
func (e *EventEmitter) Events() <-chan Event {
	return e.ch
}

// Close ends the stream. Further calls do nothing.
func (e *EventEmitter) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.ch)
}
