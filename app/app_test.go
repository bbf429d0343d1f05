package app

import (
	"net/netip"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tcpgoodput/network"
	"github.com/sarchlab/tcpgoodput/sim/timing"
	"github.com/sarchlab/tcpgoodput/tcp"
)

var _ = Describe("BulkSender and PacketSink", func() {
	var (
		engine      *timing.SerialEngine
		clientStack *tcp.Stack
		serverStack *tcp.Stack
		serverAddr  netip.Addr
	)

	BeforeEach(func() {
		engine = timing.NewSerialEngine()
		client := network.NewNode(0, "Client", engine)
		server := network.NewNode(1, "Server", engine)
		a, b := network.Connect(client, server,
			network.MustParseLinkSpec("1Mbps", "10ms"),
			network.QueueConfig{Mode: network.QueueModeBytes, MaxBytes: 64000})

		h := network.MustNewAddressHelper("10.1.0.0/16", "10.1.1.0", 24)
		Expect(h.Assign(a, b)).To(Succeed())
		Expect(network.PopulateRoutingTables(
			[]*network.Node{client, server})).To(Succeed())

		cfg := tcp.DefaultConfig()
		cfg.SegmentSize = 512
		clientStack = tcp.Install(client, cfg)
		serverStack = tcp.Install(server, cfg)
		serverAddr = server.Addresses()[0]
	})

	newPair := func(port uint16) (*BulkSender, *PacketSink) {
		sender := NewBulkSender("Sender", clientStack,
			netip.AddrPortFrom(serverAddr, port))
		sink := NewPacketSink("Sink", serverStack, port)

		return sender, sink
	}

	It("should count the bytes of a bulk transfer", func() {
		sender, sink := newPair(9)
		sink.SetStartTime(0)
		sink.SetStopTime(2)
		sender.SetStartTime(0.05)
		sender.SetStopTime(2)
		Expect(sink.Install(engine)).To(Succeed())
		Expect(sender.Install(engine)).To(Succeed())

		Expect(engine.RunUntil(1)).To(Succeed())
		Expect(sender.IsRunning()).To(BeTrue())
		Expect(sink.IsRunning()).To(BeTrue())
		Expect(sink.Accepted()).To(HaveLen(1))
		Expect(sender.Conn().State()).To(Equal(tcp.StateEstablished))

		Expect(engine.RunUntil(2)).To(Succeed())
		rx := sink.TotalRx()
		Expect(rx).To(BeNumerically(">", 0))
		Expect(rx).To(BeNumerically("<=", 2*1000000/8))
		Expect(rx).To(BeNumerically("<=", sender.TotalTx()))
		Expect(sender.TotalTx() % DefaultSendSize).To(BeZero())

		Expect(engine.RunUntil(3)).To(Succeed())
		Expect(sink.TotalRx()).To(Equal(rx))
		Expect(sender.IsRunning()).To(BeFalse())
		Expect(sink.IsRunning()).To(BeFalse())
	})

	It("should stop at the byte limit", func() {
		sender, sink := newPair(9)
		sender.SetMaxBytes(10000)
		Expect(sink.Install(engine)).To(Succeed())
		Expect(sender.Install(engine)).To(Succeed())

		Expect(engine.RunUntil(5)).To(Succeed())

		Expect(sender.TotalTx()).To(Equal(uint64(10000)))
		Expect(sink.TotalRx()).To(Equal(uint64(10000)))
	})

	It("should retry the handshake until the sink listens", func() {
		sender, sink := newPair(9)
		sink.SetStartTime(0.5)
		Expect(sink.Install(engine)).To(Succeed())
		Expect(sender.Install(engine)).To(Succeed())

		Expect(engine.RunUntil(0.9)).To(Succeed())
		Expect(sink.Accepted()).To(BeEmpty())
		Expect(serverStack.Unmatched).To(Equal(uint64(1)))

		Expect(engine.RunUntil(3)).To(Succeed())
		Expect(sink.Accepted()).To(HaveLen(1))
		Expect(sink.TotalRx()).To(BeNumerically(">", 0))
	})

	It("should reject a stop time before the start time", func() {
		_, sink := newPair(9)
		sink.SetStartTime(2)
		sink.SetStopTime(1)

		Expect(sink.Install(engine)).NotTo(Succeed())
	})

	It("should abort the run when two sinks share a port", func() {
		_, sink1 := newPair(9)
		_, sink2 := newPair(9)
		Expect(sink1.Install(engine)).To(Succeed())
		Expect(sink2.Install(engine)).To(Succeed())

		err := engine.RunUntil(1)

		Expect(err).To(MatchError(timing.ErrEngineAborted))
		Expect(err).To(MatchError(tcp.ErrPortInUse))
	})
})
