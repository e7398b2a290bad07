package viewsync

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of triggers per key. Only the last trigger
// in a window runs, delay after it was made (trailing edge).
type Debouncer struct {
	clock Clock
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*debounced
	gen     uint64
}

type debounced struct {
	timer Timer
	gen   uint64
	fn    func()
}

// NewDebouncer creates a debouncer. A nil clock means the wall clock.
func NewDebouncer(clock Clock, delay time.Duration) *Debouncer {
	if clock == nil {
		clock = RealClock{}
	}
	return &Debouncer{
		clock:   clock,
		delay:   delay,
		pending: make(map[string]*debounced),
	}
}

// Delay returns the coalescing window.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Trigger schedules fn for key, replacing any pending call and restarting
// the window. It reports whether key had nothing pending before.
func (d *Debouncer) Trigger(key string, fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	gen := d.gen
	prev, existed := d.pending[key]
	if existed {
		prev.timer.Stop()
	}
	p := &debounced{gen: gen, fn: fn}
	d.pending[key] = p
	p.timer = d.clock.AfterFunc(d.delay, func() { d.fire(key, gen) })
	return !existed
}

// fire runs the pending call for key if gen is still current. A timer
// that lost a race with Trigger or Cancel finds a newer gen and returns.
func (d *Debouncer) fire(key string, gen uint64) {
	d.mu.Lock()
	p, ok := d.pending[key]
	if !ok || p.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	p.fn()
}

// Cancel drops the pending call for key. It reports whether one was
// pending.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pending[key]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(d.pending, key)
	return true
}

// Pending returns the number of keys with a scheduled call.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop cancels everything and returns the number of calls dropped.
func (d *Debouncer) Stop() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.pending)
	for key, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, key)
	}
	return n
}
