package tracing

import (
	"fmt"
	"sync"

	"github.com/JeffersonLab/SRO-RTDP-sub001/admission"
	"github.com/JeffersonLab/SRO-RTDP-sub001/channel"
	"github.com/JeffersonLab/SRO-RTDP-sub001/hooking"
)

// BufferTracer turns buffer pushes and pops into residence tasks. Attached to
// an admission server, it starts tracing the buffers of every admitted
// channel.
type BufferTracer struct {
	tracers []Tracer

	lock   sync.Mutex
	traced map[string]bool
}

// NewBufferTracer creates a hook that feeds the given tracers.
func NewBufferTracer(tracers ...Tracer) *BufferTracer {
	return &BufferTracer{
		tracers: tracers,
		traced:  make(map[string]bool),
	}
}

// Trace attaches the tracer to every buffer of the channel.
func (h *BufferTracer) Trace(c channel.Channel) {
	if c.InputBuffer() != nil {
		h.TraceBuffer(c.InputBuffer())
	}

	for _, b := range c.OutputBuffers() {
		h.TraceBuffer(b)
	}
}

// TraceBuffer attaches the tracer to one buffer. Attaching twice does nothing.
func (h *BufferTracer) TraceBuffer(b channel.Buffer) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.traced[b.Name()] {
		return
	}

	h.traced[b.Name()] = true
	b.AcceptHook(h)
}

// Func handles buffer and admission hooks.
func (h *BufferTracer) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case admission.HookPosSourceAdmitted:
		adm := ctx.Item.(*admission.Admission)
		for _, c := range adm.Channels {
			h.Trace(c)
		}
	case channel.HookPosBufPush:
		if task, ok := bufferTask(ctx); ok {
			for _, t := range h.tracers {
				t.StartTask(task)
			}
		}
	case channel.HookPosBufPop:
		if task, ok := bufferTask(ctx); ok {
			for _, t := range h.tracers {
				t.EndTask(task)
			}
		}
	}
}

func bufferTask(ctx hooking.HookCtx) (Task, bool) {
	rec, ok := ctx.Item.(*channel.Record)
	if !ok {
		return Task{}, false
	}

	buf, ok := ctx.Domain.(channel.Buffer)
	if !ok {
		return Task{}, false
	}

	what := "evio"
	if rec.IsEnd() {
		what = "end"
	}

	return Task{
		ID:     fmt.Sprintf("%s@%p", buf.Name(), rec),
		Kind:   KindBufferResidence,
		What:   fmt.Sprintf("%s#%d", what, rec.RecordID),
		Where:  buf.Name(),
		Detail: rec,
	}, true
}
