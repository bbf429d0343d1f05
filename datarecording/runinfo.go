package datarecording

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TableRunInfo is the table a RunInfoRecorder writes to.
const TableRunInfo = "run_info"

// RunProperty is one row of the run info table.
type RunProperty struct {
	Property string
	Value    string
}

// A RunInfoRecorder stores how and when a run was started, next to its
// results.
type RunInfoRecorder struct {
	recorder DataRecorder
	entries  []RunProperty
}

// NewRunInfoRecorder creates the run info table in the recorder.
func NewRunInfoRecorder(recorder DataRecorder) *RunInfoRecorder {
	r := &RunInfoRecorder{
		recorder: recorder,
	}

	recorder.CreateTable(TableRunInfo, RunProperty{})

	return r
}

// Start notes the start time, the command line and the executable path.
func (r *RunInfoRecorder) Start() {
	r.Add("Start Time", timestamp())
	r.Add("Command", strings.Join(os.Args, " "))

	ex, err := os.Executable()
	if err != nil {
		panic(err)
	}

	r.Add("Path", filepath.Dir(ex))
}

// Add buffers a property.
func (r *RunInfoRecorder) Add(property, value string) {
	r.entries = append(r.entries, RunProperty{property, value})
}

// Finish writes the buffered properties along with the end time.
func (r *RunInfoRecorder) Finish() {
	r.Add("End Time", timestamp())

	for _, entry := range r.entries {
		r.recorder.InsertData(TableRunInfo, entry)
	}

	r.entries = nil

	r.recorder.Flush()
}

func timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}
