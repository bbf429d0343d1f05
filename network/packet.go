package network

import (
	"net/netip"

	"github.com/sarchlab/tcpgoodput/sim/timing"
)

// Header sizes in bytes.
const (
	IPv4HeaderSize = 20
	PPPHeaderSize  = 2
)

// DefaultTTL is the time-to-live of locally originated packets.
const DefaultTTL = 64

// A Packet is an IPv4 datagram. Size counts the IP header and the payload but
// not the link-layer framing.
type Packet struct {
	ID       uint64
	Src      netip.Addr
	Dst      netip.Addr
	TTL      int
	Size     int
	Payload  any
	SentTime timing.VTimeInSec
}

// WireSize is the number of bytes the packet occupies on a point-to-point
// link and in a device queue.
func (p *Packet) WireSize() int {
	return p.Size + PPPHeaderSize
}
