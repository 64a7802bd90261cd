package sync

import (
	"slices"
	gosync "sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batchRecorder struct {
	mu      gosync.Mutex
	batches [][]string
}

func (r *batchRecorder) record(items []string) {
	slices.Sort(items)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, items)
}

func (r *batchRecorder) get() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.batches)
}

func TestChangeDebouncer_CoalescesBurst(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &batchRecorder{}
	d := NewChangeDebouncer(time.Second, clock, rec.record)

	d.Add("a.md")
	clock.Advance(500 * time.Millisecond)
	d.Add("b.md")
	d.Add("a.md")
	clock.Advance(500 * time.Millisecond)
	assert.Empty(t, rec.get(), "timer restarts on every add")

	clock.Advance(600 * time.Millisecond)
	assert.Eventually(t, func() bool { return len(rec.get()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a.md", "b.md"}, rec.get()[0])
	assert.Equal(t, 0, d.Pending())
}

func TestChangeDebouncer_Cancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &batchRecorder{}
	d := NewChangeDebouncer(time.Second, clock, rec.record)

	d.Add("a.md")
	d.Cancel()
	clock.Advance(2 * time.Second)
	d.Flush()

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.get())
	assert.Equal(t, 0, d.Pending())
}

func TestChangeDebouncer_AddDuringFlushGoesToNextBatch(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &batchRecorder{}
	release := make(chan struct{})
	entered := make(chan struct{}, 1)

	var d *ChangeDebouncer[string]
	first := true
	d = NewChangeDebouncer(time.Second, clock, func(items []string) {
		if first {
			first = false
			entered <- struct{}{}
			<-release
		}
		rec.record(items)
	})

	d.Add("a.md")
	done := make(chan struct{})
	go func() {
		d.Flush()
		close(done)
	}()
	<-entered

	d.Add("b.md")
	d.Flush() // no reentrant flush while processing
	assert.Equal(t, 1, d.Pending())

	close(release)
	<-done
	require.Len(t, rec.get(), 1)
	assert.Equal(t, []string{"a.md"}, rec.get()[0])

	clock.Advance(time.Second)
	assert.Eventually(t, func() bool { return len(rec.get()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"b.md"}, rec.get()[1])
}
