// Package debounce coalesces bursts of triggers into a single delayed action.
package debounce

import (
	"sync"
	"time"
)

// Debouncer holds at most one pending action. Each call to Debounce replaces
// the pending action and restarts the delay. Actions run on a background
// goroutine, one at a time.
type Debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	action   func()
	gen      uint64
	interval time.Duration

	run sync.Mutex // serializes action execution
}

// New creates a Debouncer that waits interval after the last trigger.
func New(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Debounce cancels any pending action and schedules action to run after the
// interval. It never blocks on a running action.
func (d *Debouncer) Debounce(action func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.action = action
	d.timer = time.AfterFunc(d.interval, func() { d.fire(gen) })
}

// fire runs the pending action if it still belongs to generation gen.
// A timer that fired just as it was replaced finds a newer generation and
// does nothing.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.action == nil {
		d.mu.Unlock()
		return
	}
	action := d.action
	d.action = nil
	d.timer = nil
	d.mu.Unlock()

	d.run.Lock()
	defer d.run.Unlock()
	action()
}

// Flush runs the pending action immediately on the caller's goroutine.
// It waits for an action that is already running to finish first.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	action := d.action
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	d.action = nil
	d.timer = nil
	d.mu.Unlock()

	d.run.Lock()
	defer d.run.Unlock()
	if action != nil {
		action()
	}
}

// Stop drops the pending action without running it.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	d.action = nil
	d.timer = nil
}

// Pending reports whether an action is waiting to run.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.action != nil
}
