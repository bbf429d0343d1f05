package tracing

import (
	"github.com/sarchlab/tcpgoodput/network"
	"github.com/sarchlab/tcpgoodput/sim/hooking"
	"github.com/sarchlab/tcpgoodput/sim/timing"
)

// A BusyTimeTracer measures how long a device keeps its link busy. Every
// packet that leaves the queue of the device occupies the link for its
// serialization time. Back-to-back transmissions are merged into one busy
// period.
type BusyTimeTracer struct {
	timeTeller timing.TimeTeller
	rate       network.DataRate

	busyTime   timing.VTimeInSec
	busy       bool
	busyStart  timing.VTimeInSec
	busyEnd    timing.VTimeInSec
	numPackets uint64
}

// NewBusyTimeTracer creates a tracer and attaches it to the queue of the
// device.
func NewBusyTimeTracer(
	timeTeller timing.TimeTeller,
	dev *network.Device,
) *BusyTimeTracer {
	t := &BusyTimeTracer{
		timeTeller: timeTeller,
		rate:       dev.Spec().DataRate,
	}

	dev.Queue().AcceptHook(t)

	return t
}

// Func records the transmission of a dequeued packet.
func (t *BusyTimeTracer) Func(ctx hooking.HookCtx) {
	if ctx.Pos != network.HookPosQueueDequeue {
		return
	}

	pkt, ok := ctx.Item.(*network.Packet)
	if !ok {
		return
	}

	now := t.timeTeller.Now()
	end := now + t.rate.TransmissionTime(pkt.WireSize())
	t.numPackets++

	if t.busy && now <= t.busyEnd {
		t.busyEnd = max(t.busyEnd, end)
		return
	}

	t.collapse()

	t.busy = true
	t.busyStart = now
	t.busyEnd = end
}

func (t *BusyTimeTracer) collapse() {
	if !t.busy {
		return
	}

	t.busyTime += t.busyEnd - t.busyStart
	t.busy = false
}

// NumPackets returns the number of packets sent.
func (t *BusyTimeTracer) NumPackets() uint64 {
	return t.numPackets
}

// BusyTime returns how long the link was busy before the given time. A
// transmission still in progress counts up to that time only.
func (t *BusyTimeTracer) BusyTime(until timing.VTimeInSec) timing.VTimeInSec {
	total := t.busyTime
	if t.busy && until > t.busyStart {
		total += min(t.busyEnd, until) - t.busyStart
	}

	return total
}

// Utilization returns the fraction of [0, until] the link was busy.
func (t *BusyTimeTracer) Utilization(until timing.VTimeInSec) float64 {
	if until <= 0 {
		return 0
	}

	return t.BusyTime(until) / until
}
