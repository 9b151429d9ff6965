package tracing

import (
	"sync"
	"time"
)

// AverageTimeTracer can collect the average time of executing a certain type
// of task. Overlapping tasks are counted separately.
type AverageTimeTracer struct {
	clock         Clock
	filter        TaskFilter
	lock          sync.Mutex
	averageTime   time.Duration
	maxTime       time.Duration
	inflightTasks map[string]Task
	taskCount     uint64
}

// NewAverageTimeTracer creates a new AverageTimeTracer. A nil filter accepts
// every task.
func NewAverageTimeTracer(clock Clock, filter TaskFilter) *AverageTimeTracer {
	return &AverageTimeTracer{
		clock:         clock,
		filter:        filter,
		inflightTasks: make(map[string]Task),
	}
}

// AverageTime returns the average duration of the finished tasks.
func (t *AverageTimeTracer) AverageTime() time.Duration {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.averageTime
}

// MaxTime returns the longest finished task.
func (t *AverageTimeTracer) MaxTime() time.Duration {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.maxTime
}

// TotalCount returns the total number of finished tasks.
func (t *AverageTimeTracer) TotalCount() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.taskCount
}

// InFlight returns the number of started tasks that have not ended.
func (t *AverageTimeTracer) InFlight() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return len(t.inflightTasks)
}

// StartTask records the task start time.
func (t *AverageTimeTracer) StartTask(task Task) {
	task.StartTime = t.clock.Now()

	if t.filter != nil && !t.filter(task) {
		return
	}

	t.lock.Lock()
	t.inflightTasks[task.ID] = task
	t.lock.Unlock()
}

// EndTask folds the task duration into the average.
func (t *AverageTimeTracer) EndTask(task Task) {
	task.EndTime = t.clock.Now()

	t.lock.Lock()
	defer t.lock.Unlock()

	original, ok := t.inflightTasks[task.ID]
	if !ok {
		return
	}

	delete(t.inflightTasks, task.ID)

	original.EndTime = task.EndTime
	d := original.Duration()

	t.averageTime = time.Duration(
		(float64(t.averageTime)*float64(t.taskCount) + float64(d)) /
			float64(t.taskCount+1))
	t.taskCount++

	if d > t.maxTime {
		t.maxTime = d
	}
}
