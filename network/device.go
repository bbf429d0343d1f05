package network

import (
	"fmt"
	"net/netip"

	"github.com/sarchlab/tcpgoodput/sim/hooking"
	"github.com/sarchlab/tcpgoodput/sim/timing"
)

// A Device is one end of a point-to-point link. It serializes one packet at
// a time at the link rate; packets waiting for the wire sit in its queue.
type Device struct {
	hooking.HookableBase

	name   string
	node   *Node
	peer   *Device
	spec   LinkSpec
	engine timing.EventScheduler
	queue  *DropTailQueue

	prefix    netip.Prefix
	addressed bool
	busy      bool

	TxPackets uint64
	TxBytes   uint64
	RxPackets uint64
	RxBytes   uint64
}

type txCompleteEvent struct {
	*timing.EventBase
	pkt *Packet
}

type propagationEvent struct {
	*timing.EventBase
	pkt *Packet
}

// Name returns the name of the device.
func (d *Device) Name() string {
	return d.name
}

// Node returns the node the device is attached to.
func (d *Device) Node() *Node {
	return d.node
}

// Peer returns the device at the other end of the link.
func (d *Device) Peer() *Device {
	return d.peer
}

// Queue returns the transmit queue of the device.
func (d *Device) Queue() *DropTailQueue {
	return d.queue
}

// Spec returns the characteristics of the link the device drives.
func (d *Device) Spec() LinkSpec {
	return d.spec
}

// SetAddress assigns an interface address with its network mask.
func (d *Device) SetAddress(prefix netip.Prefix) {
	d.prefix = prefix
	d.addressed = true
}

// Address returns the interface address. The second value is false when the
// device has not been addressed yet.
func (d *Device) Address() (netip.Addr, bool) {
	return d.prefix.Addr(), d.addressed
}

// Prefix returns the interface address together with its mask.
func (d *Device) Prefix() netip.Prefix {
	return d.prefix
}

// Send queues the packet for transmission. It returns false if the queue
// dropped the packet.
func (d *Device) Send(pkt *Packet) bool {
	if !d.queue.Enqueue(pkt) {
		return false
	}

	if !d.busy {
		d.startTransmission()
	}

	return true
}

func (d *Device) startTransmission() {
	pkt := d.queue.Dequeue()
	if pkt == nil {
		return
	}

	d.busy = true
	now := d.engine.Now()
	txTime := d.spec.DataRate.TransmissionTime(pkt.WireSize())

	evt := &txCompleteEvent{
		EventBase: timing.NewEventBase(now+txTime, d),
		pkt:       pkt,
	}
	d.engine.Schedule(evt)
}

// Handle processes the events of the device.
func (d *Device) Handle(e timing.Event) error {
	switch evt := e.(type) {
	case *txCompleteEvent:
		return d.completeTransmission(evt)
	case *propagationEvent:
		return d.peer.receive(evt.pkt)
	default:
		return fmt.Errorf("device %s cannot handle event %T", d.name, e)
	}
}

func (d *Device) completeTransmission(evt *txCompleteEvent) error {
	d.TxPackets++
	d.TxBytes += uint64(evt.pkt.WireSize())

	arrival := &propagationEvent{
		EventBase: timing.NewEventBase(evt.Time()+d.spec.Delay, d),
		pkt:       evt.pkt,
	}
	d.engine.Schedule(arrival)

	d.busy = false
	d.startTransmission()

	return nil
}

func (d *Device) receive(pkt *Packet) error {
	d.RxPackets++
	d.RxBytes += uint64(pkt.WireSize())

	return d.node.receive(pkt, d)
}
