package speech

import "time"

// task is a cancellable one-shot scheduled function. The manager owns every
// task it creates and cancels them on Cleanup so no timer outlives it.
type task struct {
	timer *time.Timer
}

// schedule runs fn after d in its own goroutine.
func schedule(d time.Duration, fn func()) *task {
	return &task{timer: time.AfterFunc(d, fn)}
}

// cancel stops the task if it has not fired yet. Safe on nil.
func (t *task) cancel() {
	if t != nil && t.timer != nil {
		t.timer.Stop()
	}
}
