// Package logsink defines the three-severity log contract the build core
// emits to. Rendering is owned by the caller; the core only writes entries.
package logsink

import (
	"fmt"
	"io"
	"sync"
)

// Level is the severity of an entry.
type Level string

const (
	LevelDebug Level = "debug"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is a single log line emitted by a stage.
type Entry struct {
	Level   Level  `json:"level" yaml:"level"`
	Tag     string `json:"tag" yaml:"tag"`
	Message string `json:"message" yaml:"message"`
}

// Sink receives tagged messages at three severities.
type Sink interface {
	Debug(tag, message string)
	Warn(tag, message string)
	Error(tag, message string)
}

// Discard drops every entry.
var Discard Sink = discard{}

type discard struct{}

func (discard) Debug(string, string) {}
func (discard) Warn(string, string)  {}
func (discard) Error(string, string) {}

// Console writes "[level] [tag] message" lines to w.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Debug(tag, message string) { c.write(LevelDebug, tag, message) }
func (c *Console) Warn(tag, message string)  { c.write(LevelWarn, tag, message) }
func (c *Console) Error(tag, message string) { c.write(LevelError, tag, message) }

func (c *Console) write(level Level, tag, message string) {
	if c == nil || c.w == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, "[%s] [%s] %s\n", level, tag, message)
}

// Func adapts a function to Sink. The function must not block.
type Func func(Entry)

func (f Func) Debug(tag, message string) { f.send(Entry{LevelDebug, tag, message}) }
func (f Func) Warn(tag, message string)  { f.send(Entry{LevelWarn, tag, message}) }
func (f Func) Error(tag, message string) { f.send(Entry{LevelError, tag, message}) }

func (f Func) send(e Entry) {
	if f != nil {
		f(e)
	}
}

// Recorder keeps every entry in memory.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *Recorder) Debug(tag, message string) { r.add(LevelDebug, tag, message) }
func (r *Recorder) Warn(tag, message string)  { r.add(LevelWarn, tag, message) }
func (r *Recorder) Error(tag, message string) { r.add(LevelError, tag, message) }

func (r *Recorder) add(level Level, tag, message string) {
	r.mu.Lock()
	r.entries = append(r.entries, Entry{Level: level, Tag: tag, Message: message})
	r.mu.Unlock()
}

// Entries returns a copy of the recorded entries in emission order.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Count returns how many entries were recorded at level.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Multi fans every entry out to all sinks.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multi []Sink

func (m multi) Debug(tag, message string) {
	for _, s := range m {
		s.Debug(tag, message)
	}
}

func (m multi) Warn(tag, message string) {
	for _, s := range m {
		s.Warn(tag, message)
	}
}

func (m multi) Error(tag, message string) {
	for _, s := range m {
		s.Error(tag, message)
	}
}
