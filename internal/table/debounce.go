package table

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid submissions and delivers only the last one once
// the input has been quiet for the configured delay.
type Debouncer[T any] struct {
	delay   time.Duration
	deliver func(T)

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending T
	has     bool
	stopped bool
}

// NewDebouncer returns a debouncer calling deliver from its own goroutine.
// A zero delay delivers synchronously.
func NewDebouncer[T any](delay time.Duration, deliver func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, deliver: deliver}
}

// Submit replaces any pending value and restarts the quiet period.
func (d *Debouncer[T]) Submit(v T) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.delay <= 0 {
		d.mu.Unlock()
		d.deliver(v)
		return
	}
	d.pending = v
	d.has = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
	d.mu.Unlock()
}

// fire runs when the timer of submission gen expires. A timer that was
// already running when a newer Submit stopped it carries an old gen and
// delivers nothing.
func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	v, ok := d.take()
	d.mu.Unlock()
	if ok {
		d.deliver(v)
	}
}

// take clears and returns the pending value. d.mu must be held.
func (d *Debouncer[T]) take() (T, bool) {
	var zero T
	if d.stopped || !d.has {
		return zero, false
	}
	v := d.pending
	d.has = false
	d.pending = zero
	return v, true
}

// Flush delivers the pending value now, if there is one.
func (d *Debouncer[T]) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	v, ok := d.take()
	d.mu.Unlock()
	if ok {
		d.deliver(v)
	}
}

// Stop drops any pending value. Later submissions are ignored.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.gen++
	d.has = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
