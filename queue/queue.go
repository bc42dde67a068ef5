// Package queue runs conversions one at a time on a background worker and
// reports every job state change to an observer.
package queue

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type entry struct {
	id  string
	src string
	dst string
}

// Queue holds backlog of pending jobs. Backlog is the only state shared
// between submitting side and the worker.
type Queue struct {
	conv Converter
	obs  Observer
	log  *zap.Logger

	pollInterval time.Duration

	mu       sync.Mutex
	backlog  []entry
	active   string
	closed   bool
	started  bool
	stopOnce sync.Once

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

type Option func(*Queue)

// WithPollInterval makes idle worker log that it is alive, zero disables it.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) {
		q.pollInterval = d
	}
}

func New(conv Converter, obs Observer, log *zap.Logger, opts ...Option) *Queue {
	if obs == nil {
		obs = ObserverFunc(func(Event) {})
	}
	q := &Queue{
		conv: conv,
		obs:  obs,
		log:  log.Named("queue"),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches worker. Cancelling ctx has the same effect as Shutdown:
// worker exits after current job.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started || q.closed {
		return
	}
	q.started = true
	go q.run(ctx)
}

// Submit adds job to the end of backlog and returns its id. It never waits
// for conversion.
func (q *Queue) Submit(src, dst string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("unable to generate job id: %w", err)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrQueueClosed
	}
	q.backlog = append(q.backlog, entry{id: id.String(), src: src, dst: dst})
	q.mu.Unlock()

	q.signal()
	q.log.Debug("Job submitted", zap.String("id", id.String()), zap.String("src", src), zap.String("dst", dst))
	return id.String(), nil
}

// Remove drops pending job from backlog. Job being converted cannot be
// removed.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.active == id {
		return ErrJobActive
	}
	i := slices.IndexFunc(q.backlog, func(e entry) bool { return e.id == id })
	if i < 0 {
		return ErrJobNotFound
	}
	q.backlog = slices.Delete(q.backlog, i, i+1)
	q.log.Debug("Job removed", zap.String("id", id))
	return nil
}

// Len returns number of pending jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// Shutdown stops accepting jobs and tells worker to exit after current job.
// Pending jobs are never started. It waits for worker until ctx is done.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closeLocked()
	started := q.started
	abandoned := len(q.backlog)
	q.mu.Unlock()

	if abandoned > 0 {
		q.log.Debug("Pending jobs abandoned", zap.Int("count", abandoned))
	}
	if !started {
		return nil
	}

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when worker exits.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
