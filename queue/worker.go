package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

// next returns first pending job. Stop request and cancelled ctx take
// precedence over any backlog.
func (q *Queue) next(ctx context.Context) (entry, bool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if ctx.Err() != nil {
		q.closeLocked()
	}
	select {
	case <-q.stop:
		return entry{}, false, true
	default:
	}
	if len(q.backlog) == 0 {
		return entry{}, false, false
	}
	e := q.backlog[0]
	q.backlog[0] = entry{}
	q.backlog = q.backlog[1:]
	q.active = e.id
	return e, true, false
}

// closeLocked refuses new submissions and requests worker stop, q.mu must be
// held.
func (q *Queue) closeLocked() {
	q.closed = true
	q.stopOnce.Do(func() { close(q.stop) })
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)

	var tick <-chan time.Time
	if q.pollInterval > 0 {
		t := time.NewTicker(q.pollInterval)
		defer t.Stop()
		tick = t.C
	}

	q.log.Debug("Worker started")
	defer q.log.Debug("Worker stopped")

	for {
		e, ok, stop := q.next(ctx)
		if stop {
			return
		}
		if ok {
			q.process(ctx, e)
			continue
		}

		select {
		case <-q.wake:
		case <-q.stop:
		case <-ctx.Done():
			// next observes cancellation and stops the worker
		case <-tick:
			q.log.Debug("Waiting for jobs", zap.Int("pending", q.Len()))
		}
	}
}

// process runs single job to a terminal state. Conversion is never
// interrupted once started.
func (q *Queue) process(ctx context.Context, e entry) {
	log := q.log.With(zap.String("id", e.id))

	defer func() {
		q.mu.Lock()
		q.active = ""
		q.mu.Unlock()
	}()

	q.obs.OnUpdate(Event{JobID: e.id, Status: StatusConverting, Progress: 0, Message: "Starting conversion..."})

	start := time.Now()
	err := q.convert(context.WithoutCancel(ctx), e)
	if err != nil {
		log.Error("Job failed", zap.String("src", e.src), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		q.obs.OnUpdate(Event{JobID: e.id, Status: StatusFailed, Progress: 0, Message: "Error: " + err.Error(), Err: err})
		return
	}
	log.Info("Job completed", zap.String("src", e.src), zap.String("dst", e.dst), zap.Duration("elapsed", time.Since(start)))
	q.obs.OnUpdate(Event{JobID: e.id, Status: StatusCompleted, Progress: 1, Message: "Complete!"})
}

func (q *Queue) convert(ctx context.Context, e entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("Converter panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("conversion panic: %v", r)
		}
	}()

	return q.conv.Convert(ctx, e.src, e.dst, func(fraction float64, message string) {
		q.obs.OnUpdate(Event{JobID: e.id, Status: StatusConverting, Progress: fraction, Message: message})
	})
}
