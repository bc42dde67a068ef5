//go:generate go tool go-enum

package queue

// Conversion job state.
// ENUM(Pending, Converting, Completed, Failed)
type Status int

// Terminal reports whether job in this state will never change again.
func (x Status) Terminal() bool {
	return x == StatusCompleted || x == StatusFailed
}

// allowed checks single step of job state machine.
func (x Status) allowed(next Status) bool {
	switch x {
	case StatusPending:
		return next == StatusConverting
	case StatusConverting:
		return next == StatusConverting || next.Terminal()
	}
	return false
}
