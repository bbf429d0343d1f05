package experiment

import (
	"fmt"
	"io"

	"github.com/sarchlab/tcpgoodput/datarecording"
	"github.com/sarchlab/tcpgoodput/sim/timing"
)

// TableGoodput is the table the goodput records are stored in.
const TableGoodput = "goodput"

// GoodputRecord is the outcome of one flow.
type GoodputRecord struct {
	FlowIndex             int
	WindowSizeBytes       uint32
	QueueCapacityBytes    uint32
	SegmentSizeBytes      uint32
	ReceivedBytes         uint64
	ActiveDuration        float64
	GoodputBytesPerSecond float64
}

// String formats the record as one line of the experiment output.
func (r GoodputRecord) String() string {
	return fmt.Sprintf("flow %d windowSize %d queueSize %d segSize %d goodput %s",
		r.FlowIndex, r.WindowSizeBytes, r.QueueCapacityBytes,
		r.SegmentSizeBytes, formatGoodput(r.GoodputBytesPerSecond))
}

// formatGoodput prints six significant digits and no trailing zeros.
func formatGoodput(g float64) string {
	return fmt.Sprintf("%.6g", g)
}

// A GoodputReporter turns the byte counts of the flows into goodput.
type GoodputReporter struct {
	records []GoodputRecord
}

// NewGoodputReporter creates a GoodputReporter with no records.
func NewGoodputReporter() *GoodputReporter {
	return &GoodputReporter{}
}

// Collect computes the goodput of every flow over the time its sender was
// active. It must only be called once the run is over.
func (r *GoodputReporter) Collect(
	flows []*Flow,
	cfg Config,
	horizon timing.VTimeInSec,
) []GoodputRecord {
	r.records = make([]GoodputRecord, 0, len(flows))

	for _, f := range flows {
		active := horizon - f.StartOffset
		received := f.ReceivedBytes()

		r.records = append(r.records, GoodputRecord{
			FlowIndex:             f.Index,
			WindowSizeBytes:       cfg.WindowSizeBytes,
			QueueCapacityBytes:    cfg.QueueCapacityBytes,
			SegmentSizeBytes:      cfg.SegmentSizeBytes,
			ReceivedBytes:         received,
			ActiveDuration:        active,
			GoodputBytesPerSecond: float64(received) / active,
		})
	}

	return r.records
}

// Records returns what the last Collect computed.
func (r *GoodputReporter) Records() []GoodputRecord {
	return r.records
}

// Report writes one line per flow, in flow order.
func (r *GoodputReporter) Report(w io.Writer) error {
	for _, rec := range r.records {
		if _, err := fmt.Fprintln(w, rec.String()); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	}

	return nil
}

// Store inserts the records into the goodput table of the recorder.
func (r *GoodputReporter) Store(recorder datarecording.DataRecorder) {
	recorder.CreateTable(TableGoodput, GoodputRecord{})

	for _, rec := range r.records {
		recorder.InsertData(TableGoodput, rec)
	}

	recorder.Flush()
}
