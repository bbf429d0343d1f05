package tracing

import (
	"bytes"
	"encoding/csv"
	"net/netip"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tcpgoodput/network"
	"github.com/sarchlab/tcpgoodput/sim/timing"
	"github.com/sarchlab/tcpgoodput/tcp"
)

var _ = Describe("CSVTraceWriter", func() {
	var (
		engine *timing.SerialEngine
		buf    *bytes.Buffer
		tracer *CSVTraceWriter
	)

	BeforeEach(func() {
		engine = timing.NewSerialEngine()
		buf = new(bytes.Buffer)
		tracer = NewCSVTraceWriter(engine, buf)
	})

	It("should write the header", func() {
		tracer.Terminate()

		Expect(buf.String()).To(Equal("Time,Kind,Where,Value\n"))
		Expect(tracer.Err()).NotTo(HaveOccurred())
	})

	It("should trace a congested transfer", func() {
		client := network.NewNode(0, "Client", engine)
		server := network.NewNode(1, "Server", engine)
		a, b := network.Connect(client, server,
			network.MustParseLinkSpec("1Mbps", "10ms"),
			network.QueueConfig{Mode: network.QueueModeBytes, MaxBytes: 3000})

		h := network.MustNewAddressHelper("10.1.0.0/16", "10.1.1.0", 24)
		Expect(h.Assign(a, b)).To(Succeed())
		Expect(network.PopulateRoutingTables(
			[]*network.Node{client, server})).To(Succeed())

		cfg := tcp.DefaultConfig()
		cfg.SegmentSize = 512
		clientStack := tcp.Install(client, cfg)
		serverStack := tcp.Install(server, cfg)

		TraceQueues(tracer, []*network.Device{a, b})
		TraceConnections(tracer, []*tcp.Stack{clientStack})

		_, err := serverStack.Listen(9, func(*tcp.Conn) {})
		Expect(err).NotTo(HaveOccurred())

		conn, err := clientStack.Dial(
			netip.AddrPortFrom(server.Addresses()[0], 9))
		Expect(err).NotTo(HaveOccurred())

		fill := func(c *tcp.Conn) error {
			for c.TxAvailable() > 0 {
				if _, err := c.Write(512); err != nil {
					return err
				}
			}

			return nil
		}
		conn.SetConnectedCallback(fill)
		conn.SetSendCallback(func(c *tcp.Conn, _ uint32) error {
			return fill(c)
		})

		Expect(engine.RunUntil(5)).To(Succeed())
		tracer.Terminate()
		Expect(tracer.Err()).NotTo(HaveOccurred())

		records, err := csv.NewReader(buf).ReadAll()
		Expect(err).NotTo(HaveOccurred())

		kinds := map[string]int{}
		for _, r := range records[1:] {
			Expect(r).To(HaveLen(4))
			kinds[r[1]]++
		}

		Expect(kinds[KindCwnd]).To(BeNumerically(">", 0))
		Expect(kinds[KindDrop]).To(BeNumerically(">", 0))
		Expect(kinds[KindRetransmit]).To(BeNumerically(">", 0))
	})
})
