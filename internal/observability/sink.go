// Package observability forwards errors and notable events to an external
// error tracker. Reporting is a side channel: callers never change their
// behaviour based on it.
package observability

import (
	"context"
	"sync"
	"time"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Sink receives exceptions and messages.
type Sink interface {
	CaptureException(ctx context.Context, err error, tags map[string]string)
	CaptureMessage(ctx context.Context, msg string, level Level, tags map[string]string)
	Flush(timeout time.Duration) bool
}

// NopSink drops everything. It is used when no DSN is configured.
type NopSink struct{}

func (NopSink) CaptureException(context.Context, error, map[string]string)       {}
func (NopSink) CaptureMessage(context.Context, string, Level, map[string]string) {}
func (NopSink) Flush(time.Duration) bool                                         { return true }

// Event is a captured exception or message kept by Recorder.
type Event struct {
	Err     error
	Message string
	Level   Level
	Tags    map[string]string
}

// Recorder keeps events in memory. Tests use it to assert what was reported.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) CaptureException(_ context.Context, err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Err: err, Level: LevelError, Tags: tags})
}

func (r *Recorder) CaptureMessage(_ context.Context, msg string, level Level, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Message: msg, Level: level, Tags: tags})
}

func (r *Recorder) Flush(time.Duration) bool { return true }

// Events returns a copy of everything captured so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
