package queue

import (
	"context"
	"errors"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobActive   = errors.New("job is being converted")
	ErrQueueClosed = errors.New("queue is closed")
	ErrTransition  = errors.New("invalid job state transition")
)

// ProgressFunc receives conversion progress as fraction in [0, 1] and human
// readable message.
type ProgressFunc func(fraction float64, message string)

// Converter does actual work for a job.
type Converter interface {
	Convert(ctx context.Context, src, dst string, progress ProgressFunc) error
}

// Job is caller side view of a submitted conversion.
type Job struct {
	ID       string
	Src      string
	Dst      string
	Status   Status
	Progress float64
	Message  string
	Err      error
}

// Event describes single job state change produced by worker.
type Event struct {
	JobID    string
	Status   Status
	Progress float64
	Message  string
	// set for StatusFailed only
	Err error
}

// Observer is called on worker goroutine for every event, it must not block
// for long and must not touch caller state directly. See Mailbox.
type Observer interface {
	OnUpdate(Event)
}

// ObserverFunc adapts function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnUpdate(e Event) {
	f(e)
}
