package search

import (
	"sync"
	"time"
)

// Debouncer runs the most recently triggered function once its input has been
// quiet for the wait window. Each Trigger restarts the window.
type Debouncer struct {
	wait time.Duration

	mu    sync.Mutex
	timer *time.Timer
	fn    func()
	seq   uint64
}

// NewDebouncer creates a debouncer with the given quiescence window
func NewDebouncer(wait time.Duration) *Debouncer {
	return &Debouncer{wait: wait}
}

// Trigger schedules fn, replacing any pending function and restarting the window
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	if d.timer != nil {
		d.timer.Stop()
	}
	d.fn = fn
	seq := d.seq
	d.timer = time.AfterFunc(d.wait, func() { d.fire(seq) })
}

// Cancel drops the pending function and reports whether there was one
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	pending := d.fn != nil
	d.resetLocked()
	return pending
}

// Pending reports whether a function is waiting for the window to elapse
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fn != nil
}

// Flush runs the pending function immediately on the calling goroutine
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	fn := d.fn
	d.resetLocked()
	d.mu.Unlock()

	if fn == nil {
		return false
	}
	fn()
	return true
}

func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	// a timer that lost the race with Stop still fires; seq tells it apart
	if seq != d.seq || d.fn == nil {
		d.mu.Unlock()
		return
	}
	fn := d.fn
	d.fn = nil
	d.timer = nil
	d.mu.Unlock()

	fn()
}

func (d *Debouncer) resetLocked() {
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.fn = nil
}
