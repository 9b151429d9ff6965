package datarecording

import (
	"os"
	"strings"
	"time"
)

// ExecTable is the table that records the command that produced a database.
const ExecTable = "exec_info"

// ExecInfo is one property of the recorded execution.
type ExecInfo struct {
	Property string
	Value    string
}

const execTimeFormat = "2006-01-02 15:04:05.000000000"

// execRecorder records the command line, working directory and run time.
type execRecorder struct {
	recorder DataRecorder
	entries  []ExecInfo
}

func newExecRecorder(recorder DataRecorder) *execRecorder {
	recorder.CreateTable(ExecTable, ExecInfo{})

	return &execRecorder{recorder: recorder}
}

// Start notes the command and the start time.
func (e *execRecorder) Start() {
	e.entries = append(e.entries,
		ExecInfo{"Start Time", time.Now().Format(execTimeFormat)},
		ExecInfo{"Command", strings.Join(os.Args, " ")},
	)

	if cwd, err := os.Getwd(); err == nil {
		e.entries = append(e.entries, ExecInfo{"Working Directory", cwd})
	}
}

// End inserts the noted entries along with the end time.
func (e *execRecorder) End() {
	for _, entry := range e.entries {
		e.recorder.InsertData(ExecTable, entry)
	}

	e.recorder.InsertData(ExecTable,
		ExecInfo{"End Time", time.Now().Format(execTimeFormat)})

	e.entries = nil
}
