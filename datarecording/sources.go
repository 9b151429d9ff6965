package datarecording

import (
	"errors"
	"time"

	"github.com/JeffersonLab/SRO-RTDP-sub001/admission"
	"github.com/JeffersonLab/SRO-RTDP-sub001/hooking"
	"github.com/JeffersonLab/SRO-RTDP-sub001/rocscan"
)

// Tables written by the recorders of this package.
const (
	AdmissionTable = "admission"
	RejectionTable = "rejection"
	StreamTable    = "stream"
	SourceIDTable  = "source_id"
)

// AdmissionEntry is one channel created for an admitted source.
type AdmissionEntry struct {
	Session        string
	Channel        string
	StreamIndex    int
	Remote         string
	CodaID         int32
	BufferSize     int32
	SocketCount    int32
	SocketPosition int32
	Time           string
}

// RejectionEntry is a connection refused during admission.
type RejectionEntry struct {
	Remote string
	Reason string
	Time   string
}

// StreamEntry is the end of the stream of one channel.
type StreamEntry struct {
	Session  string
	Channel  string
	CodaID   int32
	RecordID uint64
	Outcome  string
	Error    string
	Time     string
}

// SourceIDEntry is one source id found by a scan.
type SourceIDEntry struct {
	File      string
	SourceID  int
	Events    int
	Converged bool
	Limited   bool
}

// RecordedTables returns a sample entry for every table this package writes,
// keyed by table name.
func RecordedTables() map[string]any {
	return map[string]any{
		ExecTable:      ExecInfo{},
		AdmissionTable: AdmissionEntry{},
		RejectionTable: RejectionEntry{},
		StreamTable:    StreamEntry{},
		SourceIDTable:  SourceIDEntry{},
	}
}

// Stream outcomes.
const (
	OutcomeEnd      = "end"
	OutcomeFailed   = "failed"
	OutcomeShutdown = "shutdown"
)

// StreamOutcome classifies the error a stream ended with.
func StreamOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeEnd
	case errors.Is(err, admission.ErrShutdown):
		return OutcomeShutdown
	default:
		return OutcomeFailed
	}
}

const timeFormat = time.RFC3339Nano

// AdmissionRecorder is a hook that records the admission server activity.
type AdmissionRecorder struct {
	recorder DataRecorder
	now      func() time.Time
}

// NewAdmissionRecorder creates the admission tables.
func NewAdmissionRecorder(recorder DataRecorder) *AdmissionRecorder {
	r := &AdmissionRecorder{
		recorder: recorder,
		now:      time.Now,
	}

	recorder.CreateTable(AdmissionTable, AdmissionEntry{})
	recorder.CreateTable(RejectionTable, RejectionEntry{})
	recorder.CreateTable(StreamTable, StreamEntry{})

	return r
}

// Func records admissions, rejections and stream ends. Records are flushed
// once the server saturates and when the recorder is closed.
func (r *AdmissionRecorder) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case admission.HookPosSourceAdmitted:
		r.recordAdmission(ctx.Item.(*admission.Admission))
	case admission.HookPosSourceRejected:
		r.recordRejection(ctx.Item.(string), ctx.Detail)
	case admission.HookPosStreamDone:
		err, _ := ctx.Detail.(error)
		r.recordStream(ctx.Item.(*admission.Admission), err)
	case admission.HookPosSaturated:
		r.recorder.Flush()
	}
}

func (r *AdmissionRecorder) recordAdmission(adm *admission.Admission) {
	for _, c := range adm.Channels {
		r.recorder.InsertData(AdmissionTable, AdmissionEntry{
			Session:        adm.Session,
			Channel:        c.Name(),
			StreamIndex:    c.StreamIndex(),
			Remote:         adm.Remote,
			CodaID:         adm.Handshake.CodaID,
			BufferSize:     adm.Handshake.BufferSize,
			SocketCount:    adm.Handshake.SocketCount,
			SocketPosition: adm.Handshake.SocketPosition,
			Time:           adm.Time.Format(timeFormat),
		})
	}
}

func (r *AdmissionRecorder) recordRejection(remote string, detail any) {
	entry := RejectionEntry{
		Remote: remote,
		Time:   r.now().Format(timeFormat),
	}

	if err, ok := detail.(error); ok && err != nil {
		entry.Reason = err.Error()
	}

	r.recorder.InsertData(RejectionTable, entry)
}

func (r *AdmissionRecorder) recordStream(adm *admission.Admission, err error) {
	outcome := StreamOutcome(err)
	message := ""
	if err != nil {
		message = err.Error()
	}

	for _, c := range adm.Channels {
		r.recorder.InsertData(StreamTable, StreamEntry{
			Session:  adm.Session,
			Channel:  c.Name(),
			CodaID:   adm.Handshake.CodaID,
			RecordID: c.RecordID(),
			Outcome:  outcome,
			Error:    message,
			Time:     r.now().Format(timeFormat),
		})
	}
}

// RecordScan stores the ids of a scan report, one row per id.
func RecordScan(recorder DataRecorder, report rocscan.Report) {
	recorder.CreateTable(SourceIDTable, SourceIDEntry{})

	for _, id := range report.IDs {
		recorder.InsertData(SourceIDTable, SourceIDEntry{
			File:      report.File,
			SourceID:  id,
			Events:    report.Events,
			Converged: report.Converged,
			Limited:   report.Limited,
		})
	}

	recorder.Flush()
}
