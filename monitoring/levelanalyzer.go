package monitoring

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/JeffersonLab/SRO-RTDP-sub001/channel"
	"github.com/JeffersonLab/SRO-RTDP-sub001/hooking"
	"github.com/tebeka/atexit"
)

// A Clock tells the current time.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time {
	return time.Now()
}

// WallClock returns the system clock.
func WallClock() Clock {
	return wallClock{}
}

// LevelAnalyzer tracks the time-weighted average level of buffers. A buffer
// that stays full while its neighbours drain marks the bottleneck of the
// pipeline.
type LevelAnalyzer struct {
	clock  Clock
	writer io.Writer

	lock    sync.Mutex
	start   time.Time
	buffers map[string]*levelInfo
}

type levelInfo struct {
	buf             channel.Buffer
	lastLevel       int
	lastTime        time.Time
	levelToDuration map[int]time.Duration
}

func (l *levelInfo) average(now time.Time) float64 {
	sum := 0.0
	durationSum := 0.0

	for level, d := range l.levelToDuration {
		sum += float64(level) * d.Seconds()
		durationSum += d.Seconds()
	}

	pending := now.Sub(l.lastTime).Seconds()
	if pending > 0 {
		sum += float64(l.lastLevel) * pending
		durationSum += pending
	}

	if durationSum == 0.0 {
		return 0.0
	}

	return sum / durationSum
}

// LevelReport is the level summary of one buffer.
type LevelReport struct {
	Buffer   string  `json:"buffer"`
	Current  int     `json:"current"`
	Average  float64 `json:"average"`
	Capacity int     `json:"capacity"`
}

// NewLevelAnalyzer creates a LevelAnalyzer that reports to stderr at exit.
func NewLevelAnalyzer(clock Clock) *LevelAnalyzer {
	la := &LevelAnalyzer{
		clock:   clock,
		writer:  os.Stderr,
		start:   clock.Now(),
		buffers: make(map[string]*levelInfo),
	}

	atexit.Register(la.Report)

	return la
}

// WithWriter sets where Report writes.
func (la *LevelAnalyzer) WithWriter(w io.Writer) *LevelAnalyzer {
	la.writer = w
	return la
}

// Register starts tracking a buffer. Registering a buffer twice has no
// effect.
func (la *LevelAnalyzer) Register(buf channel.Buffer) {
	la.lock.Lock()

	if _, ok := la.buffers[buf.Name()]; ok {
		la.lock.Unlock()
		return
	}

	la.buffers[buf.Name()] = &levelInfo{
		buf:             buf,
		lastLevel:       buf.Size(),
		lastTime:        la.clock.Now(),
		levelToDuration: make(map[int]time.Duration),
	}

	la.lock.Unlock()

	buf.AcceptHook(la)
}

// Func records a buffer level change.
func (la *LevelAnalyzer) Func(ctx hooking.HookCtx) {
	buf, ok := ctx.Domain.(channel.Buffer)
	if !ok {
		return
	}

	la.lock.Lock()
	defer la.lock.Unlock()

	info, ok := la.buffers[buf.Name()]
	if !ok {
		panic("buffer not registered with the LevelAnalyzer")
	}

	now := la.clock.Now()
	info.levelToDuration[info.lastLevel] += now.Sub(info.lastTime)
	info.lastTime = now
	info.lastLevel = buf.Size()
}

// Levels returns the level summary of every buffer, sorted by name.
func (la *LevelAnalyzer) Levels() []LevelReport {
	la.lock.Lock()
	defer la.lock.Unlock()

	now := la.clock.Now()
	reports := make([]LevelReport, 0, len(la.buffers))

	for name, info := range la.buffers {
		reports = append(reports, LevelReport{
			Buffer:   name,
			Current:  info.lastLevel,
			Average:  info.average(now),
			Capacity: info.buf.Capacity(),
		})
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Buffer < reports[j].Buffer
	})

	return reports
}

// Report dumps the buffer levels as comma separated lines.
func (la *LevelAnalyzer) Report() {
	elapsed := la.clock.Now().Sub(la.start).Seconds()

	for _, r := range la.Levels() {
		fmt.Fprintf(la.writer, "%s, %.6f, %d, %.6f, %d\n",
			r.Buffer, elapsed, r.Current, r.Average, r.Capacity)
	}
}
