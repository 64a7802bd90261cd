package sync

import (
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jonboulle/clockwork"
)

const DefaultDebounceDelay = 2 * time.Second

// ChangeDebouncer collects items and hands them to a callback as one batch
// once no new item arrived for the configured delay. Items added while the
// callback runs are kept for the next batch.
type ChangeDebouncer[T comparable] struct {
	clock    clockwork.Clock
	delay    time.Duration
	callback func(items []T)

	mu         sync.Mutex
	pending    mapset.Set[T]
	timer      clockwork.Timer
	processing bool
}

func NewChangeDebouncer[T comparable](delay time.Duration, clock clockwork.Clock, callback func(items []T)) *ChangeDebouncer[T] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	return &ChangeDebouncer[T]{
		clock:    clock,
		delay:    delay,
		callback: callback,
		pending:  mapset.NewThreadUnsafeSet[T](),
	}
}

// Add records item as pending and restarts the delay.
func (d *ChangeDebouncer[T]) Add(item T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending.Add(item)
	d.restartLocked()
}

func (d *ChangeDebouncer[T]) restartLocked() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(d.delay, d.Flush)
}

// Flush runs the callback with everything pending. It does nothing while a
// previous flush is still running or when nothing is pending.
func (d *ChangeDebouncer[T]) Flush() {
	d.mu.Lock()
	if d.processing || d.pending.Cardinality() == 0 {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	items := d.pending.ToSlice()
	d.pending = mapset.NewThreadUnsafeSet[T]()
	d.processing = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.processing = false
		if d.pending.Cardinality() > 0 {
			d.restartLocked()
		}
		d.mu.Unlock()
	}()

	d.callback(items)
}

// Cancel drops pending items and the timer without calling back.
func (d *ChangeDebouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending.Clear()
}

func (d *ChangeDebouncer[T]) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending.Cardinality()
}
