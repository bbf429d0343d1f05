package tracing

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/sarchlab/tcpgoodput/sim/hooking"
	"github.com/sarchlab/tcpgoodput/sim/timing"
)

// CSVTraceWriter writes one line per traced event, in the form
// "Time,Kind,Where,Value".
type CSVTraceWriter struct {
	timeTeller timing.TimeTeller
	writer     *csv.Writer

	lines      int
	bufferSize int
	err        error
}

// NewCSVTraceWriter creates a tracer that writes to w. The header is written
// immediately.
func NewCSVTraceWriter(timeTeller timing.TimeTeller, w io.Writer) *CSVTraceWriter {
	t := &CSVTraceWriter{
		timeTeller: timeTeller,
		writer:     csv.NewWriter(w),
		bufferSize: 1000,
	}

	t.write([]string{"Time", "Kind", "Where", "Value"})

	return t
}

// Func writes the event reported by a hook.
func (t *CSVTraceWriter) Func(ctx hooking.HookCtx) {
	kind, ok := classify(ctx)
	if !ok {
		return
	}

	now := t.timeTeller.Now()

	var where, value string

	switch kind {
	case KindDrop:
		r := dropRecord(now, ctx)
		where = r.Queue
		value = strconv.Itoa(r.Size)
	case KindCwnd:
		r := cwndRecord(now, ctx)
		where = r.Conn
		value = strconv.FormatUint(uint64(r.Cwnd), 10)
	default:
		r := connEventRecord(now, kind, ctx)
		where = r.Conn
		value = strconv.FormatFloat(r.Value, 'g', -1, 64)
	}

	t.write([]string{strconv.FormatFloat(now, 'f', 10, 64), kind, where, value})
}

func (t *CSVTraceWriter) write(record []string) {
	if t.err != nil {
		return
	}

	if err := t.writer.Write(record); err != nil {
		t.err = err
		return
	}

	t.lines++
	if t.lines%t.bufferSize == 0 {
		t.writer.Flush()
	}
}

// Terminate flushes the buffered lines.
func (t *CSVTraceWriter) Terminate() {
	t.writer.Flush()
}

// Err returns the first error met while writing.
func (t *CSVTraceWriter) Err() error {
	if t.err != nil {
		return t.err
	}

	return t.writer.Error()
}
