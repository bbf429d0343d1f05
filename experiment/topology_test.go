package experiment

import (
	"fmt"
	"net/netip"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tcpgoodput/network"
	"github.com/sarchlab/tcpgoodput/sim/timing"
)

var _ = Describe("Topology", func() {
	var (
		engine   *timing.SerialEngine
		defaults TransportDefaults
	)

	BeforeEach(func() {
		engine = timing.NewSerialEngine()

		var err error
		defaults, err = NewTransportDefaults(DefaultConfig())
		Expect(err).ToNot(HaveOccurred())
	})

	build := func(n uint32) (*Topology, error) {
		return BuildDumbbell(engine, n, LeafLink, CoreLink, defaults,
			DefaultAddressPlan())
	}

	It("should reject an empty dumbbell", func() {
		_, err := build(0)

		Expect(err).To(MatchError(ErrInvalidConfig))
	})

	DescribeTable("should create two routers and two leaves per flow",
		func(n int) {
			topo, err := build(uint32(n))
			Expect(err).ToNot(HaveOccurred())

			Expect(topo.Nodes()).To(HaveLen(2*n + 2))
			Expect(topo.LeftLeaves).To(HaveLen(n))
			Expect(topo.RightLeaves).To(HaveLen(n))
			Expect(topo.Stacks()).To(HaveLen(2*n + 2))
			Expect(topo.FlowCount()).To(Equal(n))

			for i, node := range topo.Nodes() {
				Expect(node.ID()).To(Equal(int64(i)))
				Expect(node.Protocol()).To(BeIdenticalTo(topo.Stacks()[i]))
			}

			Expect(topo.LeftRouter.Devices()).To(HaveLen(n + 1))
			Expect(topo.RightRouter.Devices()).To(HaveLen(n + 1))
			Expect(topo.Devices()).To(HaveLen(4*n + 2))
		},
		Entry("one flow", 1),
		Entry("four flows", 4),
		Entry("many flows", 40),
	)

	It("should name nodes and number interfaces like a dumbbell", func() {
		topo, err := build(2)
		Expect(err).ToNot(HaveOccurred())

		Expect(topo.LeftRouter.Name()).To(Equal("LeftRouter"))
		Expect(topo.RightRouter.Name()).To(Equal("RightRouter"))
		Expect(topo.LeftLeaves[1].Name()).To(Equal("Left1"))
		Expect(topo.RightLeaves[0].Name()).To(Equal("Right0"))

		addr := func(d *network.Device) string {
			a, ok := d.Address()
			Expect(ok).To(BeTrue())

			return a.String()
		}

		Expect(addr(topo.LeftRouter.Device(0))).To(Equal("10.3.1.1"))
		Expect(addr(topo.RightRouter.Device(0))).To(Equal("10.3.1.2"))
		Expect(addr(topo.LeftRouter.Device(1))).To(Equal("10.1.1.2"))
		Expect(addr(topo.LeftRouter.Device(2))).To(Equal("10.1.2.2"))
		Expect(addr(topo.RightRouter.Device(2))).To(Equal("10.2.2.2"))

		Expect(topo.LeftAddress(0).String()).To(Equal("10.1.1.1"))
		Expect(topo.LeftAddress(1).String()).To(Equal("10.1.2.1"))
		Expect(topo.RightAddress(0).String()).To(Equal("10.2.1.1"))
		Expect(topo.RightAddress(1).String()).To(Equal("10.2.2.1"))

		Expect(topo.Bottleneck()).To(BeIdenticalTo(topo.LeftRouter.Device(0)))
		Expect(topo.Bottleneck().Spec()).To(Equal(CoreLink))
		Expect(topo.LeftLeaves[0].Device(0).Spec()).To(Equal(LeafLink))
	})

	It("should give every interface its own address", func() {
		topo, err := build(16)
		Expect(err).ToNot(HaveOccurred())

		plan := DefaultAddressPlan()
		seen := make(map[netip.Addr]string)

		for _, d := range topo.Devices() {
			a, ok := d.Address()
			Expect(ok).To(BeTrue(), d.Name())
			Expect(seen).ToNot(HaveKey(a), fmt.Sprintf("%s reuses %s", d.Name(), a))
			seen[a] = d.Name()
		}

		for i := range topo.LeftLeaves {
			Expect(plan.Left.Block.Contains(topo.LeftAddress(i))).To(BeTrue())
			Expect(plan.Right.Block.Contains(topo.RightAddress(i))).To(BeTrue())
		}
	})

	It("should give stacks the transport defaults", func() {
		topo, err := build(1)
		Expect(err).ToNot(HaveOccurred())

		Expect(topo.LeftStack(0).Node()).To(BeIdenticalTo(topo.LeftLeaves[0]))
		Expect(topo.RightStack(0).Node()).To(BeIdenticalTo(topo.RightLeaves[0]))
		Expect(topo.LeftStack(0).Config()).To(Equal(defaults.TCPConfig()))
		Expect(topo.Bottleneck().Queue().Capacity()).
			To(Equal(int(DefaultConfig().QueueCapacityBytes)))
	})

	It("should fill one block with 255 leaf links", func() {
		_, err := build(255)
		Expect(err).ToNot(HaveOccurred())

		_, err = build(256)
		Expect(err).To(MatchError(network.ErrAddressSpaceExhausted))
	})

	It("should reject overlapping blocks", func() {
		plan := DefaultAddressPlan()
		plan.Right = plan.Left

		_, err := BuildDumbbell(engine, 1, LeafLink, CoreLink, defaults, plan)

		Expect(err).To(MatchError(ErrInvalidConfig))
	})

	It("should route every left leaf to every right leaf", func() {
		topo, err := build(3)
		Expect(err).ToNot(HaveOccurred())

		Expect(ResolveRoutes(topo)).To(Succeed())

		for i, l := range topo.LeftLeaves {
			for j := range topo.RightLeaves {
				Expect(l.Lookup(topo.RightAddress(j))).
					To(BeIdenticalTo(l.Device(0)))
			}

			Expect(topo.LeftRouter.Lookup(topo.LeftAddress(i))).
				To(BeIdenticalTo(topo.LeftRouter.Device(i + 1)))
			Expect(topo.LeftRouter.Lookup(topo.RightAddress(i))).
				To(BeIdenticalTo(topo.Bottleneck()))
		}
	})
})
