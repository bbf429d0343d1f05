package network

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tcpgoodput/sim/hooking"
)

func packetOfWireSize(n int) *Packet {
	return &Packet{Size: n - PPPHeaderSize}
}

var _ = Describe("DropTailQueue", func() {
	Context("in byte mode", func() {
		var q *DropTailQueue

		BeforeEach(func() {
			q = NewDropTailQueue("Q", QueueConfig{
				Mode:     QueueModeBytes,
				MaxBytes: 1000,
			})
		})

		It("should accept packets up to the capacity", func() {
			Expect(q.Enqueue(packetOfWireSize(600))).To(BeTrue())
			Expect(q.Enqueue(packetOfWireSize(400))).To(BeTrue())

			Expect(q.Bytes()).To(Equal(1000))
			Expect(q.Size()).To(Equal(1000))
			Expect(q.Capacity()).To(Equal(1000))
		})

		It("should drop the arriving packet when full", func() {
			Expect(q.Enqueue(packetOfWireSize(600))).To(BeTrue())
			Expect(q.Enqueue(packetOfWireSize(401))).To(BeFalse())
			Expect(q.Enqueue(packetOfWireSize(100))).To(BeTrue())

			Expect(q.Len()).To(Equal(2))
			Expect(q.Drops).To(Equal(uint64(1)))
			Expect(q.DroppedBytes).To(Equal(uint64(401)))
		})

		It("should dequeue in FIFO order", func() {
			first := packetOfWireSize(100)
			second := packetOfWireSize(200)
			q.Enqueue(first)
			q.Enqueue(second)

			Expect(q.Peek()).To(BeIdenticalTo(first))
			Expect(q.Dequeue()).To(BeIdenticalTo(first))
			Expect(q.Dequeue()).To(BeIdenticalTo(second))
			Expect(q.Dequeue()).To(BeNil())
			Expect(q.Bytes()).To(Equal(0))
		})

		It("should report drops to hooks", func() {
			var dropped []*Packet
			q.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
				if ctx.Pos == HookPosQueueDrop {
					dropped = append(dropped, ctx.Item.(*Packet))
				}
			}))

			big := packetOfWireSize(1001)
			q.Enqueue(big)

			Expect(dropped).To(ConsistOf(big))
		})
	})

	Context("in packet mode", func() {
		It("should count packets", func() {
			q := NewDropTailQueue("Q", QueueConfig{
				Mode:       QueueModePackets,
				MaxPackets: 2,
			})

			Expect(q.Enqueue(packetOfWireSize(1500))).To(BeTrue())
			Expect(q.Enqueue(packetOfWireSize(1500))).To(BeTrue())
			Expect(q.Enqueue(packetOfWireSize(40))).To(BeFalse())
			Expect(q.Size()).To(Equal(2))
		})
	})

	It("should validate its configuration", func() {
		Expect(QueueConfig{Mode: QueueModeBytes}.Validate()).NotTo(Succeed())
		Expect(QueueConfig{Mode: QueueModePackets}.Validate()).NotTo(Succeed())
		Expect(DefaultQueueConfig().Validate()).To(Succeed())
	})

	It("should parse queue modes", func() {
		m, err := ParseQueueMode("bytes")
		Expect(err).NotTo(HaveOccurred())
		Expect(m).To(Equal(QueueModeBytes))

		_, err = ParseQueueMode("flits")
		Expect(err).To(HaveOccurred())
	})
})
