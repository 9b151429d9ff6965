package tracing

import (
	"sync"
	"time"
)

// BusyTimeTracer measures how long a place holds at least one task. When tasks
// overlap, the shared time is counted once.
type BusyTimeTracer struct {
	clock    Clock
	filter   TaskFilter
	lock     sync.Mutex
	inflight map[string]struct{}
	since    time.Time
	busyTime time.Duration
}

// NewBusyTimeTracer creates a new BusyTimeTracer.
func NewBusyTimeTracer(clock Clock, filter TaskFilter) *BusyTimeTracer {
	return &BusyTimeTracer{
		clock:    clock,
		filter:   filter,
		inflight: make(map[string]struct{}),
	}
}

// BusyTime returns the time spent with at least one task in flight, including
// the current busy period.
func (t *BusyTimeTracer) BusyTime() time.Duration {
	t.lock.Lock()
	defer t.lock.Unlock()

	if len(t.inflight) == 0 {
		return t.busyTime
	}

	return t.busyTime + t.clock.Now().Sub(t.since)
}

// StartTask opens a busy period if the place was idle.
func (t *BusyTimeTracer) StartTask(task Task) {
	now := t.clock.Now()

	if t.filter != nil && !t.filter(task) {
		return
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	if len(t.inflight) == 0 {
		t.since = now
	}

	t.inflight[task.ID] = struct{}{}
}

// EndTask closes the busy period once the last task ends.
func (t *BusyTimeTracer) EndTask(task Task) {
	now := t.clock.Now()

	t.lock.Lock()
	defer t.lock.Unlock()

	if _, ok := t.inflight[task.ID]; !ok {
		return
	}

	delete(t.inflight, task.ID)

	if len(t.inflight) == 0 {
		t.busyTime += now.Sub(t.since)
	}
}

// TerminateAllTasks ends every task in flight at the current time.
func (t *BusyTimeTracer) TerminateAllTasks() {
	now := t.clock.Now()

	t.lock.Lock()
	defer t.lock.Unlock()

	if len(t.inflight) == 0 {
		return
	}

	t.busyTime += now.Sub(t.since)
	t.inflight = make(map[string]struct{})
}
