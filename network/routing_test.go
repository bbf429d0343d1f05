package network

import (
	"fmt"
	"net/netip"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tcpgoodput/sim/timing"
)

var _ = Describe("PopulateRoutingTables", func() {
	var (
		engine *timing.SerialEngine
		nodes  []*Node
		spec   LinkSpec
	)

	// A chain N0 - N1 - N2 - N3.
	BeforeEach(func() {
		engine = timing.NewSerialEngine()
		spec = MustParseLinkSpec("1Mbps", "1ms")
		nodes = nil

		for i := 0; i < 4; i++ {
			nodes = append(nodes, NewNode(int64(i), fmt.Sprintf("N%d", i), engine))
		}

		for i := 0; i < 3; i++ {
			Connect(nodes[i], nodes[i+1], spec, DefaultQueueConfig())
		}
	})

	addressAll := func() {
		h := MustNewAddressHelper("10.0.0.0/16", "10.0.1.0", 24)
		for i := 0; i < 3; i++ {
			left := nodes[i].Devices()[len(nodes[i].Devices())-1]
			Expect(h.Assign(left, left.Peer())).To(Succeed())
			h.NewNetwork()
		}
	}

	It("should refuse to route unaddressed devices", func() {
		err := PopulateRoutingTables(nodes)
		Expect(err).To(MatchError(ErrNotAddressed))
	})

	It("should route along the chain", func() {
		addressAll()

		Expect(PopulateRoutingTables(nodes)).To(Succeed())

		far := nodes[3].Addresses()[0]
		Expect(nodes[0].Lookup(far)).To(BeIdenticalTo(nodes[0].Device(0)))
		Expect(nodes[1].Lookup(far)).To(BeIdenticalTo(nodes[1].Device(1)))
		Expect(nodes[2].Lookup(far)).To(BeIdenticalTo(nodes[2].Device(1)))

		near := nodes[0].Addresses()[0]
		Expect(nodes[3].Lookup(near)).To(BeIdenticalTo(nodes[3].Device(0)))
	})

	It("should reach every interface of every node", func() {
		addressAll()
		Expect(PopulateRoutingTables(nodes)).To(Succeed())

		for _, src := range nodes {
			for _, dst := range nodes {
				for _, addr := range dst.Addresses() {
					Expect(src.Lookup(addr)).NotTo(BeNil(),
						"%s cannot reach %s", src.Name(), addr)
				}
			}
		}
	})

	It("should forward packets hop by hop", func() {
		addressAll()
		Expect(PopulateRoutingTables(nodes)).To(Succeed())

		proto := &recordingProtocol{engine: engine}
		nodes[3].InstallProtocol(proto)

		src := nodes[0].Addresses()[0]
		dst := nodes[3].Addresses()[0]
		Expect(nodes[0].Send(nodes[0].NewPacket(src, dst, 100, nil))).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(proto.arrivals).To(HaveLen(1))
		Expect(proto.arrivals[0].pkt.TTL).To(Equal(DefaultTTL - 2))
		Expect(nodes[1].Forwarded).To(Equal(uint64(1)))
	})

	It("should prefer host routes over network routes", func() {
		addressAll()
		Expect(PopulateRoutingTables(nodes)).To(Succeed())

		routes := nodes[1].Routes()
		Expect(routes[0].Prefix.Bits()).To(Equal(32))
		Expect(routes[len(routes)-1].Prefix.Bits()).To(Equal(24))
		Expect(nodes[1].Lookup(netip.MustParseAddr("10.0.3.2"))).
			To(BeIdenticalTo(nodes[1].Device(1)))
	})
})
