package network

import (
	"fmt"
	"net/netip"

	"golang.org/x/exp/slices"

	"github.com/sarchlab/tcpgoodput/sim/hooking"
	"github.com/sarchlab/tcpgoodput/sim/timing"
)

// HookPosNodeDrop marks a packet a node could not deliver or forward. The
// hook detail is the reason as a string.
var HookPosNodeDrop = &hooking.HookPos{Name: "NodeDrop"}

// A Protocol receives the packets addressed to a node. A transport stack
// installs itself on a node as its Protocol.
type Protocol interface {
	Receive(pkt *Packet, dev *Device) error
}

// Route sends every packet whose destination falls into Prefix out of
// Device.
type Route struct {
	Prefix netip.Prefix
	Device *Device
}

// A Node is a host or a router.
type Node struct {
	hooking.HookableBase

	id       int64
	name     string
	engine   timing.EventScheduler
	devices  []*Device
	routes   []Route
	protocol Protocol

	nextPacketID uint64
	Forwarded    uint64
}

// NewNode creates a node. The id must be unique within a network.
func NewNode(id int64, name string, engine timing.EventScheduler) *Node {
	return &Node{
		id:     id,
		name:   name,
		engine: engine,
	}
}

// ID returns the unique id of the node.
func (n *Node) ID() int64 {
	return n.id
}

// Name returns the name of the node.
func (n *Node) Name() string {
	return n.name
}

// Engine returns the scheduler that drives the node.
func (n *Node) Engine() timing.EventScheduler {
	return n.engine
}

// Devices returns the devices attached to the node.
func (n *Node) Devices() []*Device {
	return n.devices
}

// Device returns the i-th device of the node.
func (n *Node) Device(i int) *Device {
	return n.devices[i]
}

// InstallProtocol sets the handler of locally addressed packets.
func (n *Node) InstallProtocol(p Protocol) {
	if n.protocol != nil {
		panic(fmt.Sprintf("node %s already has a protocol installed", n.name))
	}

	n.protocol = p
}

// Protocol returns the installed transport stack, or nil.
func (n *Node) Protocol() Protocol {
	return n.protocol
}

// Addresses lists the addresses of all addressed devices.
func (n *Node) Addresses() []netip.Addr {
	addrs := make([]netip.Addr, 0, len(n.devices))
	for _, d := range n.devices {
		if addr, ok := d.Address(); ok {
			addrs = append(addrs, addr)
		}
	}

	return addrs
}

// HasAddress tells if one of the devices of the node owns the address.
func (n *Node) HasAddress(addr netip.Addr) bool {
	for _, d := range n.devices {
		if a, ok := d.Address(); ok && a == addr {
			return true
		}
	}

	return false
}

// Routes returns the routing table, most specific first.
func (n *Node) Routes() []Route {
	return n.routes
}

// AddRoute adds an entry to the routing table.
func (n *Node) AddRoute(prefix netip.Prefix, dev *Device) {
	routes := append(n.routes, Route{Prefix: prefix.Masked(), Device: dev})
	n.setRoutes(routes)
}

func (n *Node) setRoutes(routes []Route) {
	slices.SortStableFunc(routes, func(a, b Route) int {
		return b.Prefix.Bits() - a.Prefix.Bits()
	})
	n.routes = routes
}

// ClearRoutes empties the routing table.
func (n *Node) ClearRoutes() {
	n.routes = nil
}

// Lookup returns the device to reach the destination, or nil.
func (n *Node) Lookup(dst netip.Addr) *Device {
	for _, r := range n.routes {
		if r.Prefix.Contains(dst) {
			return r.Device
		}
	}

	return nil
}

func (n *Node) deviceTo(peer int64) *Device {
	for _, d := range n.devices {
		if d.peer != nil && d.peer.node.id == peer {
			return d
		}
	}

	return nil
}

// NewPacket creates a packet originating at this node.
func (n *Node) NewPacket(
	src, dst netip.Addr,
	payloadSize int,
	payload any,
) *Packet {
	n.nextPacketID++

	return &Packet{
		ID:       uint64(n.id)<<40 | n.nextPacketID,
		Src:      src,
		Dst:      dst,
		TTL:      DefaultTTL,
		Size:     IPv4HeaderSize + payloadSize,
		Payload:  payload,
		SentTime: n.engine.Now(),
	}
}

// SourceAddressFor returns the address of the device a packet to dst leaves
// from.
func (n *Node) SourceAddressFor(dst netip.Addr) (netip.Addr, error) {
	dev := n.Lookup(dst)
	if dev == nil {
		return netip.Addr{}, fmt.Errorf("%w: %s from %s", ErrNoRoute, dst, n.name)
	}

	addr, _ := dev.Address()

	return addr, nil
}

// Send routes a locally originated packet. A packet dropped by a full queue
// is not an error.
func (n *Node) Send(pkt *Packet) error {
	dev := n.Lookup(pkt.Dst)
	if dev == nil {
		return fmt.Errorf("%w: %s from %s", ErrNoRoute, pkt.Dst, n.name)
	}

	dev.Send(pkt)

	return nil
}

func (n *Node) receive(pkt *Packet, from *Device) error {
	if n.HasAddress(pkt.Dst) {
		if n.protocol == nil {
			n.drop(pkt, "no protocol")
			return nil
		}

		return n.protocol.Receive(pkt, from)
	}

	pkt.TTL--
	if pkt.TTL <= 0 {
		n.drop(pkt, "ttl expired")
		return nil
	}

	dev := n.Lookup(pkt.Dst)
	if dev == nil {
		n.drop(pkt, "no route")
		return nil
	}

	n.Forwarded++
	dev.Send(pkt)

	return nil
}

func (n *Node) drop(pkt *Packet, reason string) {
	if n.NumHooks() == 0 {
		return
	}

	n.InvokeHook(hooking.HookCtx{
		Domain: n,
		Pos:    HookPosNodeDrop,
		Item:   pkt,
		Detail: reason,
	})
}
