package network

import (
	"fmt"

	"github.com/sarchlab/tcpgoodput/sim/hooking"
)

// HookPosQueueEnqueue marks a packet accepted by a queue.
var HookPosQueueEnqueue = &hooking.HookPos{Name: "QueueEnqueue"}

// HookPosQueueDequeue marks a packet leaving a queue for transmission.
var HookPosQueueDequeue = &hooking.HookPos{Name: "QueueDequeue"}

// HookPosQueueDrop marks a packet rejected by a full queue.
var HookPosQueueDrop = &hooking.HookPos{Name: "QueueDrop"}

// QueueMode selects whether a queue limits packets or bytes.
type QueueMode int

// Queue modes.
const (
	QueueModePackets QueueMode = iota
	QueueModeBytes
)

func (m QueueMode) String() string {
	switch m {
	case QueueModePackets:
		return "packets"
	case QueueModeBytes:
		return "bytes"
	default:
		return fmt.Sprintf("QueueMode(%d)", int(m))
	}
}

// ParseQueueMode converts "packets" or "bytes" to a QueueMode.
func ParseQueueMode(s string) (QueueMode, error) {
	switch s {
	case "packets":
		return QueueModePackets, nil
	case "bytes":
		return QueueModeBytes, nil
	default:
		return 0, fmt.Errorf("unknown queue mode %q", s)
	}
}

// QueueConfig is the capacity of a tail-drop queue.
type QueueConfig struct {
	Mode       QueueMode
	MaxBytes   uint32
	MaxPackets uint32
}

// DefaultQueueConfig holds 100 packets, whatever their size.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Mode:       QueueModePackets,
		MaxBytes:   100 * 65535,
		MaxPackets: 100,
	}
}

// Validate checks that the active limit is usable.
func (c QueueConfig) Validate() error {
	switch c.Mode {
	case QueueModeBytes:
		if c.MaxBytes == 0 {
			return fmt.Errorf("queue capacity in bytes must be positive")
		}
	case QueueModePackets:
		if c.MaxPackets == 0 {
			return fmt.Errorf("queue capacity in packets must be positive")
		}
	default:
		return fmt.Errorf("unknown queue mode %s", c.Mode)
	}

	return nil
}

// A DropTailQueue is a FIFO that discards arriving packets once the next one
// would exceed its capacity.
type DropTailQueue struct {
	hooking.HookableBase

	name    string
	config  QueueConfig
	packets []*Packet
	bytes   int

	Drops        uint64
	DroppedBytes uint64
}

// NewDropTailQueue creates an empty queue.
func NewDropTailQueue(name string, config QueueConfig) *DropTailQueue {
	return &DropTailQueue{
		name:   name,
		config: config,
	}
}

// Name returns the name of the queue.
func (q *DropTailQueue) Name() string {
	return q.name
}

// Enqueue appends the packet, or drops it and returns false if it does not
// fit.
func (q *DropTailQueue) Enqueue(pkt *Packet) bool {
	if !q.fits(pkt) {
		q.Drops++
		q.DroppedBytes += uint64(pkt.WireSize())
		q.invoke(HookPosQueueDrop, pkt)

		return false
	}

	q.packets = append(q.packets, pkt)
	q.bytes += pkt.WireSize()
	q.invoke(HookPosQueueEnqueue, pkt)

	return true
}

func (q *DropTailQueue) fits(pkt *Packet) bool {
	if q.config.Mode == QueueModeBytes {
		return q.bytes+pkt.WireSize() <= int(q.config.MaxBytes)
	}

	return len(q.packets) < int(q.config.MaxPackets)
}

// Dequeue removes and returns the head packet, or nil if the queue is empty.
func (q *DropTailQueue) Dequeue() *Packet {
	if len(q.packets) == 0 {
		return nil
	}

	pkt := q.packets[0]
	q.packets[0] = nil
	q.packets = q.packets[1:]
	q.bytes -= pkt.WireSize()
	q.invoke(HookPosQueueDequeue, pkt)

	return pkt
}

// Peek returns the head packet without removing it.
func (q *DropTailQueue) Peek() *Packet {
	if len(q.packets) == 0 {
		return nil
	}

	return q.packets[0]
}

// Len returns the number of queued packets.
func (q *DropTailQueue) Len() int {
	return len(q.packets)
}

// Bytes returns the number of queued bytes, framing included.
func (q *DropTailQueue) Bytes() int {
	return q.bytes
}

// Size returns the occupancy in the unit of the queue mode.
func (q *DropTailQueue) Size() int {
	if q.config.Mode == QueueModeBytes {
		return q.bytes
	}

	return len(q.packets)
}

// Capacity returns the limit in the unit of the queue mode.
func (q *DropTailQueue) Capacity() int {
	if q.config.Mode == QueueModeBytes {
		return int(q.config.MaxBytes)
	}

	return int(q.config.MaxPackets)
}

func (q *DropTailQueue) invoke(pos *hooking.HookPos, pkt *Packet) {
	if q.NumHooks() == 0 {
		return
	}

	q.InvokeHook(hooking.HookCtx{
		Domain: q,
		Pos:    pos,
		Item:   pkt,
	})
}
