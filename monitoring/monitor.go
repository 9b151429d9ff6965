// Package monitoring serves the live state of an aggregator over HTTP: the
// admitted sources, channel fill levels, progress bars, process resources and
// Prometheus metrics.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/JeffersonLab/SRO-RTDP-sub001/admission"
	"github.com/JeffersonLab/SRO-RTDP-sub001/channel"
	"github.com/JeffersonLab/SRO-RTDP-sub001/hooking"
	"github.com/JeffersonLab/SRO-RTDP-sub001/tracing"
	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/rs/xid"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// AdmissionServer is the view of an admission server the monitor reads.
type AdmissionServer interface {
	hooking.Hookable
	Name() string
	Expected() int
	Admitted() int
	State() admission.State
	Admissions() []*admission.Admission
	Channels() []channel.Channel
}

// Monitor turns an aggregator into a small web server that reports its state.
type Monitor struct {
	portNumber int
	logger     *log.Logger
	metrics    *Metrics
	levels     *LevelAnalyzer
	residence  *tracing.AverageTimeTracer
	startTime  time.Time

	lock     sync.Mutex
	server   AdmissionServer
	channels []channel.Channel
	buffers  []channel.Buffer
	admitBar *ProgressBar
	endBar   *ProgressBar

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	httpServer *http.Server
	listener   net.Listener
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	m := &Monitor{
		logger:    log.New(os.Stderr, "monitor: ", log.LstdFlags),
		startTime: time.Now(),
	}

	m.metrics = NewMetrics(m.Channels)

	return m
}

// WithPortNumber sets the port number of the monitor. Port 0 picks a free
// port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		m.logger.Printf("port %d is not allowed for the monitor, "+
			"using a random port instead", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithLogger sets the logger of the monitor.
func (m *Monitor) WithLogger(logger *log.Logger) *Monitor {
	m.logger = logger
	return m
}

// WithLevelAnalyzer makes the monitor track the average fill level of every
// registered buffer.
func (m *Monitor) WithLevelAnalyzer(la *LevelAnalyzer) *Monitor {
	m.levels = la
	return m
}

// WithResidenceTracer makes the monitor report how long records stay in the
// buffers. The tracer must be fed by the buffers themselves.
func (m *Monitor) WithResidenceTracer(t *tracing.AverageTimeTracer) *Monitor {
	m.residence = t
	return m
}

// Metrics returns the Prometheus metrics of the monitor.
func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

// RegisterAdmission makes the monitor follow an admission server. Channels
// created by the server are registered as they are admitted.
func (m *Monitor) RegisterAdmission(s AdmissionServer) {
	m.lock.Lock()
	m.server = s
	m.lock.Unlock()

	m.admitBar = m.CreateProgressBar("Sources admitted", uint64(s.Expected()))
	m.endBar = m.CreateProgressBar("Streams ended", uint64(s.Expected()))

	for _, c := range s.Channels() {
		m.RegisterChannel(c)
		m.admitBar.IncrementFinished(1)
	}

	s.AcceptHook(m)
}

// RegisterChannel registers a channel and its buffers.
func (m *Monitor) RegisterChannel(c channel.Channel) {
	m.lock.Lock()
	for _, existing := range m.channels {
		if existing == c {
			m.lock.Unlock()
			return
		}
	}
	m.channels = append(m.channels, c)
	m.lock.Unlock()

	m.RegisterBuffer(c.InputBuffer())
	for _, b := range c.OutputBuffers() {
		m.RegisterBuffer(b)
	}
}

// RegisterBuffer registers a buffer to be reported by the hang detector.
func (m *Monitor) RegisterBuffer(b channel.Buffer) {
	m.lock.Lock()
	m.buffers = append(m.buffers, b)
	m.lock.Unlock()

	if m.levels != nil {
		m.levels.Register(b)
	}
}

// Channels returns the registered channels.
func (m *Monitor) Channels() []channel.Channel {
	m.lock.Lock()
	defer m.lock.Unlock()

	return append([]channel.Channel(nil), m.channels...)
}

// Func follows the admission server.
func (m *Monitor) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case admission.HookPosSourceAdmitted:
		adm := ctx.Item.(*admission.Admission)
		for _, c := range adm.Channels {
			m.RegisterChannel(c)
		}

		n := uint64(len(adm.Channels))
		m.admitBar.IncrementFinished(n)
		m.endBar.IncrementInProgress(n)
		m.metrics.SourcesAdmitted.Add(float64(n))
	case admission.HookPosSourceRejected:
		m.metrics.SourcesRejected.Inc()
	case admission.HookPosStreamDone:
		adm := ctx.Item.(*admission.Admission)
		n := uint64(len(adm.Channels))
		m.endBar.MoveInProgressToFinished(n)

		outcome := "end"
		if err, _ := ctx.Detail.(error); err != nil {
			outcome = "failed"
			if errors.Is(err, admission.ErrShutdown) {
				outcome = "shutdown"
			}
		}

		m.metrics.StreamsEnded.WithLabelValues(outcome).Add(float64(n))
	}
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar from the report.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Router returns the routes of the monitor.
func (m *Monitor) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/status", m.status)
	r.HandleFunc("/api/sources", m.listSources)
	r.HandleFunc("/api/channels", m.listChannels)
	r.HandleFunc("/api/channel/{name}", m.channelDetails)
	r.HandleFunc("/api/hangdetector/buffers", m.hangDetectorBuffers)
	r.HandleFunc("/api/levels", m.averageLevels)
	r.HandleFunc("/api/residence", m.residenceTime)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.Handle("/metrics", m.metrics.Handler())

	return r
}

// StartServer starts serving the monitor and returns its URL.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", err
	}

	m.listener = listener
	m.httpServer = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	m.logger.Printf("monitoring aggregator with %s", url)

	go func() {
		err := m.httpServer.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Printf("monitor stopped: %v", err)
		}
	}()

	return url, nil
}

// Close stops the web server.
func (m *Monitor) Close(ctx context.Context) error {
	if m.httpServer == nil {
		return nil
	}

	return m.httpServer.Shutdown(ctx)
}

type statusRsp struct {
	Name     string  `json:"name"`
	State    string  `json:"state"`
	Expected int     `json:"expected"`
	Admitted int     `json:"admitted"`
	Uptime   float64 `json:"uptime"`
}

func (m *Monitor) status(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	s := m.server
	m.lock.Unlock()

	rsp := statusRsp{Uptime: time.Since(m.startTime).Seconds()}
	if s != nil {
		rsp.Name = s.Name()
		rsp.State = s.State().String()
		rsp.Expected = s.Expected()
		rsp.Admitted = s.Admitted()
	}

	writeJSON(w, rsp)
}

type sourceRsp struct {
	Session  string    `json:"session"`
	Index    int       `json:"index"`
	Remote   string    `json:"remote"`
	CodaID   int32     `json:"coda_id"`
	Streams  int       `json:"streams"`
	Channels []string  `json:"channels"`
	Time     time.Time `json:"time"`
}

func (m *Monitor) listSources(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	s := m.server
	m.lock.Unlock()

	rsp := []sourceRsp{}
	if s != nil {
		for _, adm := range s.Admissions() {
			src := sourceRsp{
				Session: adm.Session,
				Index:   adm.Index,
				Remote:  adm.Remote,
				CodaID:  adm.Handshake.CodaID,
				Streams: len(adm.Channels),
				Time:    adm.Time,
			}

			for _, c := range adm.Channels {
				src.Channels = append(src.Channels, c.Name())
			}

			rsp = append(rsp, src)
		}
	}

	writeJSON(w, rsp)
}

type channelRsp struct {
	Name         string `json:"name"`
	ID           int    `json:"id"`
	StreamIndex  int    `json:"stream_index"`
	RecordID     uint64 `json:"record_id"`
	InputLevel   int    `json:"input_level"`
	OutputLevels []int  `json:"output_levels"`
	Error        string `json:"error,omitempty"`
}

func (m *Monitor) listChannels(w http.ResponseWriter, _ *http.Request) {
	rsp := []channelRsp{}

	for _, c := range m.Channels() {
		rsp = append(rsp, describeChannel(c))
	}

	writeJSON(w, rsp)
}

func describeChannel(c channel.Channel) channelRsp {
	cr := channelRsp{
		Name:         c.Name(),
		ID:           c.ID(),
		StreamIndex:  c.StreamIndex(),
		RecordID:     c.RecordID(),
		InputLevel:   c.InputLevel(),
		OutputLevels: c.OutputLevels(),
	}

	if err := c.Err(); err != nil {
		cr.Error = err.Error()
	}

	return cr
}

func (m *Monitor) channelDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	c := m.findChannelOr404(w, name)
	if c == nil {
		return
	}

	buf := bytes.NewBuffer(nil)
	serializer := goseth.NewSerializer()
	serializer.SetRoot(c)
	serializer.SetMaxDepth(1)

	if err := serializer.Serialize(buf); err != nil {
		m.logger.Printf("cannot serialize %s: %v", name, err)
		writeJSON(w, describeChannel(c))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, err := w.Write(buf.Bytes())
	dieOnErr(err)
}

func (m *Monitor) findChannelOr404(
	w http.ResponseWriter,
	name string,
) channel.Channel {
	for _, c := range m.Channels() {
		if c.Name() == name {
			return c
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Channel not found"))
	dieOnErr(err)

	return nil
}

type bufferRsp struct {
	Buffer string `json:"buffer"`
	Level  int    `json:"level"`
	Cap    int    `json:"cap"`
}

func (m *Monitor) hangDetectorBuffers(w http.ResponseWriter, r *http.Request) {
	sortMethod, limit, offset, err := buffersParseParams(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	rsp := []bufferRsp{}
	for _, b := range m.sortAndSelectBuffers(sortMethod, limit, offset) {
		rsp = append(rsp, bufferRsp{
			Buffer: b.Name(),
			Level:  b.Size(),
			Cap:    b.Capacity(),
		})
	}

	writeJSON(w, rsp)
}

func buffersParseParams(
	r *http.Request,
) (sortMethod string, limit, offset int, err error) {
	sortMethod = r.URL.Query().Get("sort")
	if sortMethod == "" {
		sortMethod = "percent"
	}

	if sortMethod != "level" && sortMethod != "percent" {
		return "", 0, 0, fmt.Errorf(
			"invalid sort method: %s. Allowed values are `level` and `percent`",
			sortMethod)
	}

	limit, err = queryInt(r, "limit")
	if err != nil {
		return "", 0, 0, err
	}

	offset, err = queryInt(r, "offset")
	if err != nil {
		return "", 0, 0, err
	}

	if limit < 0 || offset < 0 {
		return "", 0, 0, errors.New("limit and offset must not be negative")
	}

	return sortMethod, limit, offset, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, nil
	}

	return strconv.Atoi(s)
}

func bufferPercent(b channel.Buffer) float64 {
	return float64(b.Size()) / float64(b.Capacity())
}

// sortAndSelectBuffers returns a page of the buffers, fullest first. A limit
// of 0 selects all the buffers after the offset.
func (m *Monitor) sortAndSelectBuffers(
	sortMethod string,
	limit, offset int,
) []channel.Buffer {
	m.lock.Lock()
	sorted := append([]channel.Buffer(nil), m.buffers...)
	m.lock.Unlock()

	type entry struct {
		buf     channel.Buffer
		size    int
		percent float64
	}

	entries := make([]entry, len(sorted))
	for i, b := range sorted {
		entries[i] = entry{buf: b, size: b.Size(), percent: bufferPercent(b)}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]

		if sortMethod == "level" {
			if a.size != b.size {
				return a.size > b.size
			}

			return a.percent > b.percent
		}

		if a.percent != b.percent {
			return a.percent > b.percent
		}

		return a.size > b.size
	})

	if offset > len(entries) {
		offset = len(entries)
	}

	end := len(entries)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	selected := make([]channel.Buffer, 0, end-offset)
	for _, e := range entries[offset:end] {
		selected = append(selected, e.buf)
	}

	return selected
}

func (m *Monitor) averageLevels(w http.ResponseWriter, _ *http.Request) {
	if m.levels == nil {
		writeJSON(w, []LevelReport{})
		return
	}

	writeJSON(w, m.levels.Levels())
}

type residenceRsp struct {
	Count     uint64 `json:"count"`
	InFlight  int    `json:"in_flight"`
	AverageUS int64  `json:"average_us"`
	MaxUS     int64  `json:"max_us"`
}

func (m *Monitor) residenceTime(w http.ResponseWriter, _ *http.Request) {
	if m.residence == nil {
		writeJSON(w, residenceRsp{})
		return
	}

	writeJSON(w, residenceRsp{
		Count:     m.residence.TotalCount(),
		InFlight:  m.residence.InFlight(),
		AverageUS: m.residence.AverageTime().Microseconds(),
		MaxUS:     m.residence.MaxTime().Microseconds(),
	})
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := append([]*ProgressBar(nil), m.progressBars...)
	m.progressBarsLock.Unlock()

	rsp := make([]progressRsp, 0, len(bars))
	for _, b := range bars {
		rsp = append(rsp, b.snapshot())
	}

	writeJSON(w, rsp)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
