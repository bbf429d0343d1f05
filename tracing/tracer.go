// Package tracing records what happens inside queues and connections while
// an experiment runs.
package tracing

import (
	"github.com/sarchlab/tcpgoodput/network"
	"github.com/sarchlab/tcpgoodput/sim/hooking"
	"github.com/sarchlab/tcpgoodput/tcp"
)

// A Tracer is a hook that can be attached to queues and TCP stacks.
type Tracer interface {
	hooking.Hook

	// Terminate writes out whatever the tracer still buffers.
	Terminate()
}

// DropRecord is a packet discarded by a full queue.
type DropRecord struct {
	Time     float64
	Queue    string
	PacketID uint64
	Src      string
	Dst      string
	Size     int
}

// CwndRecord is a change of a congestion window.
type CwndRecord struct {
	Time     float64
	Conn     string
	Cwnd     uint32
	SsThresh uint32
}

// ConnEventRecord is a retransmission or an expired timer. Value holds the
// sequence number or the timeout.
type ConnEventRecord struct {
	Time  float64
	Conn  string
	Kind  string
	Value float64
}

// Event kinds.
const (
	KindDrop       = "drop"
	KindCwnd       = "cwnd"
	KindRetransmit = "retransmit"
	KindTimeout    = "timeout"
)

// TraceQueues attaches the tracer to the queue of every device.
func TraceQueues(t Tracer, devices []*network.Device) {
	for _, d := range devices {
		d.Queue().AcceptHook(t)
	}
}

// TraceConnections attaches the tracer to every connection the stacks open
// from now on.
func TraceConnections(t Tracer, stacks []*tcp.Stack) {
	for _, s := range stacks {
		s.AcceptConnHook(t)
	}
}

// classify tells which kind of event a hook reports. The second return
// value is false for events no tracer cares about.
func classify(ctx hooking.HookCtx) (string, bool) {
	switch ctx.Pos {
	case network.HookPosQueueDrop:
		return KindDrop, true
	case tcp.HookPosCwndChange:
		return KindCwnd, true
	case tcp.HookPosRetransmit:
		return KindRetransmit, true
	case tcp.HookPosTimeout:
		return KindTimeout, true
	default:
		return "", false
	}
}

func dropRecord(now float64, ctx hooking.HookCtx) DropRecord {
	q := ctx.Domain.(*network.DropTailQueue)
	pkt := ctx.Item.(*network.Packet)

	return DropRecord{
		Time:     now,
		Queue:    q.Name(),
		PacketID: pkt.ID,
		Src:      pkt.Src.String(),
		Dst:      pkt.Dst.String(),
		Size:     pkt.WireSize(),
	}
}

func cwndRecord(now float64, ctx hooking.HookCtx) CwndRecord {
	c := ctx.Item.(*tcp.Conn)

	return CwndRecord{
		Time:     now,
		Conn:     c.Name(),
		Cwnd:     ctx.Detail.(uint32),
		SsThresh: c.SsThresh(),
	}
}

func connEventRecord(now float64, kind string, ctx hooking.HookCtx) ConnEventRecord {
	c := ctx.Item.(*tcp.Conn)

	var value float64
	switch v := ctx.Detail.(type) {
	case uint64:
		value = float64(v)
	case float64:
		value = v
	}

	return ConnEventRecord{
		Time:  now,
		Conn:  c.Name(),
		Kind:  kind,
		Value: value,
	}
}
