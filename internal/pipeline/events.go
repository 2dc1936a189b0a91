package pipeline

import (
	"time"

	"github.com/flarebyte/apk-forge/internal/logsink"
)

// EventKind distinguishes builder notifications.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventLog      EventKind = "log"
	EventDone     EventKind = "done"
)

// Event is one asynchronous notification from the builder worker.
type Event struct {
	Kind    EventKind
	Stage   string
	Level   logsink.Level
	Message string
	// Outcome is set on EventDone.
	Outcome *Outcome
}

// emitter sends events without ever blocking the worker; events are dropped
// when the buffer is full.
type emitter chan Event

func (e emitter) emit(ev Event) {
	select {
	case e <- ev:
	default:
	}
}

// emitWait sends ev, waiting up to wait for room in the buffer.
func (e emitter) emitWait(ev Event, wait time.Duration) {
	select {
	case e <- ev:
		return
	default:
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case e <- ev:
	case <-t.C:
	}
}

func (e emitter) progress(stage, message string) {
	e.emit(Event{Kind: EventProgress, Stage: stage, Message: message})
}

func (e emitter) sink() logsink.Sink {
	return logsink.Func(func(en logsink.Entry) {
		e.emit(Event{Kind: EventLog, Stage: en.Tag, Level: en.Level, Message: en.Message})
	})
}
