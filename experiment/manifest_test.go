package experiment

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Manifest", func() {
	var (
		e   *Experiment
		dir string
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()

		cfg := Config{
			FlowCount:          4,
			QueueCapacityBytes: 4000,
			WindowSizeBytes:    32000,
			SegmentSizeBytes:   512,
		}

		var err error
		e, err = MakeBuilder().WithConfig(cfg).WithHorizon(5).Build()
		Expect(err).ToNot(HaveOccurred())

		_, err = e.Run(GinkgoWriter)
		Expect(err).ToNot(HaveOccurred())
	})

	It("should describe the run", func() {
		m := e.Manifest()

		Expect(m.RunID).To(Equal(e.ID()))
		Expect(m.Config).To(Equal(ManifestConfig{
			FlowCount:  4,
			QueueSize:  4000,
			WindowSize: 32000,
			SegSize:    512,
			Variant:    "Tahoe",
		}))
		Expect(m.Links.Leaf).To(Equal("5Mbps/10ms"))
		Expect(m.Links.Core).To(Equal("1Mbps/20ms"))
		Expect(m.Horizon).To(Equal(5.0))
		Expect(m.Jitter.Seed).To(Equal(JitterSeed))
		Expect(m.Jitter.Stream).To(Equal(JitterStream))

		Expect(m.Flows).To(HaveLen(4))
		for i, f := range m.Flows {
			Expect(f.Index).To(Equal(i))
			Expect(f.Sender).To(Equal(e.Topology().LeftAddress(i).String()))
			Expect(f.ReceivedBytes).To(Equal(e.Records()[i].ReceivedBytes))
			Expect(f.Goodput).To(Equal(e.Records()[i].GoodputBytesPerSecond))
		}

		Expect(m.Flows[2].Receiver).To(Equal("10.2.3.1:11"))

		Expect(m.BottleneckUtilization).To(BeNumerically(">", 0.5))
		Expect(m.BottleneckUtilization).To(BeNumerically("<=", 1))
	})

	It("should list the queues that dropped packets", func() {
		m := e.Manifest()

		bottleneck := e.Topology().Bottleneck().Queue()
		Expect(bottleneck.Drops).To(BeNumerically(">", 0))
		Expect(m.Queues).To(ContainElement(ManifestQueue{
			Name:         bottleneck.Name(),
			Drops:        bottleneck.Drops,
			DroppedBytes: bottleneck.DroppedBytes,
		}))

		for _, q := range m.Queues {
			Expect(q.Drops).To(BeNumerically(">", 0))
		}
	})

	It("should list the busiest queues", func() {
		m := e.Manifest()

		Expect(e.QueueLevels()).To(HaveLen(len(e.Topology().Devices())))
		Expect(m.BusiestQueues).ToNot(BeEmpty())
		Expect(len(m.BusiestQueues)).To(BeNumerically("<=", 3))

		for i, q := range m.BusiestQueues {
			Expect(q.Average).To(BeNumerically(">", 0))
			Expect(float64(q.Max)).To(BeNumerically(">=", q.Average))
			Expect(q.Max).To(BeNumerically("<=", q.Capacity))

			if i > 0 {
				Expect(q.Average).To(
					BeNumerically("<=", m.BusiestQueues[i-1].Average))
			}
		}
	})

	DescribeTable("should round trip through a file",
		func(name string) {
			path := filepath.Join(dir, name)
			m := e.Manifest()

			Expect(m.WriteToFile(path)).To(Succeed())

			read, err := ReadManifest(path)
			Expect(err).ToNot(HaveOccurred())
			Expect(read).To(Equal(m))
		},
		Entry("yaml", "run.yaml"),
		Entry("yml", "run.yml"),
		Entry("json", "run.json"),
	)

	It("should refuse unknown extensions", func() {
		path := filepath.Join(dir, "run.txt")

		Expect(e.Manifest().WriteToFile(path)).ToNot(Succeed())

		_, err := os.Stat(path)
		Expect(os.IsNotExist(err)).To(BeTrue())
	})
})
