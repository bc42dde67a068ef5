package queue

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Remover is the part of Queue tracker needs.
type Remover interface {
	Remove(id string) error
}

// Summary counts tracked jobs per state.
type Summary struct {
	Pending    int
	Converting int
	Completed  int
	Failed     int
}

func (s Summary) String() string {
	return fmt.Sprintf("%d completed, %d failed", s.Completed, s.Failed)
}

// Tracker owns caller side job collection. All job state changes go through
// Apply, which enforces job state machine.
type Tracker struct {
	q Remover

	mu    sync.Mutex
	jobs  map[string]*Job
	order []string
}

func NewTracker(q Remover) *Tracker {
	return &Tracker{q: q, jobs: make(map[string]*Job)}
}

// Add starts tracking newly submitted job.
func (t *Tracker) Add(id, src, dst string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.jobs[id]; ok {
		return
	}
	t.jobs[id] = &Job{ID: id, Src: src, Dst: dst, Status: StatusPending}
	t.order = append(t.order, id)
}

// Apply updates tracked job from worker event.
func (t *Tracker) Apply(e Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[e.JobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, e.JobID)
	}
	if !j.Status.allowed(e.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrTransition, j.Status, e.Status)
	}
	j.Status, j.Progress, j.Message, j.Err = e.Status, e.Progress, e.Message, e.Err
	return nil
}

// Job returns copy of tracked job.
func (t *Tracker) Job(id string) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if j, ok := t.jobs[id]; ok {
		return *j, true
	}
	return Job{}, false
}

// Jobs returns copies of all tracked jobs in submission order.
func (t *Tracker) Jobs() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	res := make([]Job, 0, len(t.order))
	for _, id := range t.order {
		res = append(res, *t.jobs[id])
	}
	return res
}

// Remove stops tracking job. Pending job is also taken out of the queue,
// converting job is refused.
func (t *Tracker) Remove(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	switch j.Status {
	case StatusConverting:
		return ErrJobActive
	case StatusPending:
		if err := t.q.Remove(id); err != nil {
			if errors.Is(err, ErrJobNotFound) {
				// already picked up by worker, its events are on the way
				return ErrJobActive
			}
			return err
		}
	}
	t.drop(id)
	return nil
}

// ClearFinished stops tracking completed and failed jobs and returns their
// number.
func (t *Tracker) ClearFinished() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, id := range slices.Clone(t.order) {
		if t.jobs[id].Status.Terminal() {
			t.drop(id)
			n++
		}
	}
	return n
}

func (t *Tracker) drop(id string) {
	delete(t.jobs, id)
	t.order = slices.DeleteFunc(t.order, func(s string) bool { return s == id })
}

// Summary counts tracked jobs.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	var s Summary
	for _, j := range t.jobs {
		switch j.Status {
		case StatusPending:
			s.Pending++
		case StatusConverting:
			s.Converting++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// Idle reports whether every tracked job reached terminal state.
func (t *Tracker) Idle() bool {
	s := t.Summary()
	return s.Pending == 0 && s.Converting == 0
}
