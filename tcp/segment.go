package tcp

import (
	"fmt"
	"strings"
)

// HeaderSize is the size of a TCP header without options.
const HeaderSize = 20

// Flags are the control bits of a segment.
type Flags uint8

// Control bits.
const (
	FlagSYN Flags = 1 << iota
	FlagACK
	FlagFIN
)

// Has tells if all the bits of f2 are set.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

func (f Flags) String() string {
	var parts []string
	if f.Has(FlagSYN) {
		parts = append(parts, "SYN")
	}

	if f.Has(FlagACK) {
		parts = append(parts, "ACK")
	}

	if f.Has(FlagFIN) {
		parts = append(parts, "FIN")
	}

	return strings.Join(parts, "|")
}

// A Segment is carried as the payload of a network.Packet. Data bytes are
// only counted, never materialized.
type Segment struct {
	SrcPort     uint16
	DstPort     uint16
	Seq         uint64
	Ack         uint64
	Flags       Flags
	Window      uint32
	PayloadSize int
}

// Size is the number of bytes the segment adds to an IP datagram.
func (s *Segment) Size() int {
	return HeaderSize + s.PayloadSize
}

func (s *Segment) String() string {
	return fmt.Sprintf("%d > %d [%s] Seq=%d Ack=%d Win=%d Len=%d",
		s.SrcPort, s.DstPort, s.Flags, s.Seq, s.Ack, s.Window, s.PayloadSize)
}
