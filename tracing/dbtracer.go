package tracing

import (
	"sync"
	"time"

	"github.com/JeffersonLab/SRO-RTDP-sub001/datarecording"
)

// TraceTable is the table DBTracer writes finished tasks into.
const TraceTable = "trace"

// TraceEntry is one finished task as stored in the database. Times are
// seconds since the Unix epoch.
type TraceEntry struct {
	ID         string
	Kind       string
	What       string
	Location   string
	StartTime  float64
	EndTime    float64
	DurationUS int64
}

// DBTracer stores finished tasks through a DataRecorder. Tasks that never end
// are not written.
type DBTracer struct {
	mu       sync.Mutex
	clock    Clock
	filter   TaskFilter
	backend  datarecording.DataRecorder
	inflight map[string]Task
	written  uint64
}

// NewDBTracer creates a new DBTracer and its table.
func NewDBTracer(
	clock Clock,
	recorder datarecording.DataRecorder,
) *DBTracer {
	recorder.CreateTable(TraceTable, TraceEntry{})

	return &DBTracer{
		clock:    clock,
		backend:  recorder,
		inflight: make(map[string]Task),
	}
}

// WithFilter limits the tracer to the tasks the filter accepts.
func (t *DBTracer) WithFilter(filter TaskFilter) *DBTracer {
	t.filter = filter
	return t
}

// Written returns the number of tasks written so far.
func (t *DBTracer) Written() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.written
}

// StartTask marks the start of a task.
func (t *DBTracer) StartTask(task Task) {
	startingTaskMustBeValid(task)

	task.StartTime = t.clock.Now()
	if t.filter != nil && !t.filter(task) {
		return
	}

	t.mu.Lock()
	t.inflight[task.ID] = task
	t.mu.Unlock()
}

func startingTaskMustBeValid(task Task) {
	if task.ID == "" {
		panic("task ID must be set")
	}

	if task.Kind == "" {
		panic("task kind must be set")
	}

	if task.Where == "" {
		panic("task location must be set")
	}
}

// EndTask writes the finished task.
func (t *DBTracer) EndTask(task Task) {
	now := t.clock.Now()

	t.mu.Lock()
	original, ok := t.inflight[task.ID]
	if !ok {
		t.mu.Unlock()
		return
	}

	delete(t.inflight, task.ID)
	t.written++
	t.mu.Unlock()

	original.EndTime = now
	t.backend.InsertData(TraceTable, TraceEntry{
		ID:         original.ID,
		Kind:       original.Kind,
		What:       original.What,
		Location:   original.Where,
		StartTime:  seconds(original.StartTime),
		EndTime:    seconds(original.EndTime),
		DurationUS: original.Duration().Microseconds(),
	})
}

// Terminate drops the unfinished tasks and flushes the recorder.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	t.inflight = make(map[string]Task)
	t.mu.Unlock()

	t.backend.Flush()
}

func seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
