package experiment

import (
	"bytes"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"

	"github.com/sarchlab/tcpgoodput/sim/timing"
)

type fixedReceiver uint64

func (r fixedReceiver) Name() string {
	return "Fixed"
}

func (r fixedReceiver) TotalRx() uint64 {
	return uint64(r)
}

func flowReceiving(i int, offset timing.VTimeInSec, rx uint64) *Flow {
	return &Flow{
		Index:       i,
		StartOffset: offset,
		Port:        BasePort + uint16(i),
		Receiver:    fixedReceiver(rx),
	}
}

var _ = Describe("GoodputReporter", func() {
	var (
		reporter *GoodputReporter
		cfg      Config
	)

	BeforeEach(func() {
		reporter = NewGoodputReporter()
		cfg = DefaultConfig()
	})

	It("should divide by the time the sender was active", func() {
		records := reporter.Collect([]*Flow{
			flowReceiving(0, 0, 1000000),
			flowReceiving(1, 0.05, 995000),
		}, cfg, Horizon)

		Expect(records).To(HaveLen(2))
		Expect(records[0].ActiveDuration).To(Equal(10.0))
		Expect(records[0].GoodputBytesPerSecond).To(Equal(100000.0))
		Expect(records[1].ActiveDuration).To(BeNumerically("~", 9.95, 1e-12))
		Expect(records[1].GoodputBytesPerSecond).
			To(BeNumerically("~", 100000.0, 1e-6))
		Expect(records[1].ReceivedBytes).To(Equal(uint64(995000)))
		Expect(records[1].WindowSizeBytes).To(Equal(cfg.WindowSizeBytes))
		Expect(records[1].QueueCapacityBytes).To(Equal(cfg.QueueCapacityBytes))
		Expect(records[1].SegmentSizeBytes).To(Equal(cfg.SegmentSizeBytes))
		Expect(reporter.Records()).To(Equal(records))
	})

	It("should report zero goodput for a silent flow", func() {
		records := reporter.Collect(
			[]*Flow{flowReceiving(0, 0.099, 0)}, cfg, Horizon)

		Expect(records[0].GoodputBytesPerSecond).To(BeZero())
		Expect(math.IsInf(records[0].GoodputBytesPerSecond, 0)).To(BeFalse())
	})

	It("should print one line per flow in flow order", func() {
		reporter.Collect([]*Flow{
			flowReceiving(0, 0, 1000000),
			flowReceiving(1, 0, 123456789),
			flowReceiving(2, 0.02, 0),
			flowReceiving(3, 0.0, 171717),
		}, cfg, Horizon)

		var buf bytes.Buffer
		Expect(reporter.Report(&buf)).To(Succeed())

		Expect(buf.String()).To(Equal(
			"flow 0 windowSize 2000 queueSize 64000 segSize 512 goodput 100000\n" +
				"flow 1 windowSize 2000 queueSize 64000 segSize 512 goodput 1.23457e+07\n" +
				"flow 2 windowSize 2000 queueSize 64000 segSize 512 goodput 0\n" +
				"flow 3 windowSize 2000 queueSize 64000 segSize 512 goodput 17171.7\n"))
	})
})

var _ = Describe("Goodput formatting", func() {
	It("should keep six significant digits", func() {
		t := GinkgoT()

		assert.Equal(t, "17834.4", formatGoodput(17834.41234))
		assert.Equal(t, "25000", formatGoodput(25000))
		assert.Equal(t, "0.5", formatGoodput(0.5))
		assert.Equal(t, "1e+06", formatGoodput(1000000))
	})
})
