package tracing

import (
	"sync"

	"github.com/sarchlab/tcpgoodput/datarecording"
	"github.com/sarchlab/tcpgoodput/sim/hooking"
	"github.com/sarchlab/tcpgoodput/sim/timing"
)

// Table names used by the DBTracer.
const (
	TableQueueDrops = "queue_drops"
	TableCwnd       = "tcp_cwnd"
	TableConnEvents = "tcp_events"
)

// DBTracer stores queue drops and connection events in a DataRecorder.
type DBTracer struct {
	mu         sync.Mutex
	timeTeller timing.TimeTeller
	backend    datarecording.DataRecorder

	traceCwnd  bool
	traceDrops bool
	count      uint64
}

// NewDBTracer creates the tables and returns a tracer that fills them.
func NewDBTracer(
	timeTeller timing.TimeTeller,
	dataRecorder datarecording.DataRecorder,
) *DBTracer {
	dataRecorder.CreateTable(TableQueueDrops, DropRecord{})
	dataRecorder.CreateTable(TableCwnd, CwndRecord{})
	dataRecorder.CreateTable(TableConnEvents, ConnEventRecord{})

	return &DBTracer{
		timeTeller: timeTeller,
		backend:    dataRecorder,
		traceCwnd:  true,
		traceDrops: true,
	}
}

// WithoutCwnd stops the tracer from recording congestion windows, which are
// by far the most frequent events.
func (t *DBTracer) WithoutCwnd() *DBTracer {
	t.traceCwnd = false
	return t
}

// WithoutDrops stops the tracer from recording queue drops.
func (t *DBTracer) WithoutDrops() *DBTracer {
	t.traceDrops = false
	return t
}

// Count returns the number of records written.
func (t *DBTracer) Count() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.count
}

// Func records the event reported by a hook.
func (t *DBTracer) Func(ctx hooking.HookCtx) {
	kind, ok := classify(ctx)
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.timeTeller.Now()

	switch kind {
	case KindDrop:
		if !t.traceDrops {
			return
		}

		t.backend.InsertData(TableQueueDrops, dropRecord(now, ctx))
	case KindCwnd:
		if !t.traceCwnd {
			return
		}

		t.backend.InsertData(TableCwnd, cwndRecord(now, ctx))
	default:
		t.backend.InsertData(TableConnEvents, connEventRecord(now, kind, ctx))
	}

	t.count++
}

// Terminate flushes the recorder.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.backend.Flush()
}
