package timing

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/tcpgoodput/sim/hooking"
)

func hookRecorder(record func(pos string)) hooking.HookFunc {
	return func(ctx hooking.HookCtx) {
		record(ctx.Pos.Name)
	}
}

var _ = Describe("EventQueueImpl", func() {
	var (
		mockCtrl *gomock.Controller
		queue    *EventQueueImpl
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		queue = NewEventQueue()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should pop in order", func() {
		numEvents := 100
		for i := 0; i < numEvents; i++ {
			event := NewMockEvent(mockCtrl)
			event.EXPECT().
				Time().
				Return(VTimeInSec(rand.Float64() / 1e8)).
				AnyTimes()
			queue.Push(event)
		}

		now := VTimeInSec(-1)
		for i := 0; i < numEvents; i++ {
			event := queue.Pop()
			Expect(event.Time() >= now).To(BeTrue())
			now = event.Time()
		}
	})

	It("should break ties by push order", func() {
		first := NewMockEvent(mockCtrl)
		second := NewMockEvent(mockCtrl)
		first.EXPECT().Time().Return(VTimeInSec(1)).AnyTimes()
		second.EXPECT().Time().Return(VTimeInSec(1)).AnyTimes()

		queue.Push(first)
		queue.Push(second)

		Expect(queue.Pop()).To(BeIdenticalTo(first))
		Expect(queue.Pop()).To(BeIdenticalTo(second))
	})

	It("should clear", func() {
		event := NewMockEvent(mockCtrl)
		event.EXPECT().Time().Return(VTimeInSec(1)).AnyTimes()
		queue.Push(event)

		queue.Clear()

		Expect(queue.Len()).To(Equal(0))
	})
})
