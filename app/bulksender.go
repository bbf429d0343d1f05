package app

import (
	"fmt"
	"net/netip"

	"github.com/sarchlab/tcpgoodput/sim/timing"
	"github.com/sarchlab/tcpgoodput/tcp"
)

// DefaultSendSize is the number of bytes a BulkSender hands to its socket at
// a time.
const DefaultSendSize = 512

// A BulkSender connects to a remote endpoint and writes as fast as the
// connection accepts data.
type BulkSender struct {
	appBase

	stack    *tcp.Stack
	remote   netip.AddrPort
	sendSize uint32
	maxBytes uint64

	conn      *tcp.Conn
	connected bool
	totalTx   uint64
}

// NewBulkSender creates a sender that will dial remote from the stack.
func NewBulkSender(
	name string,
	stack *tcp.Stack,
	remote netip.AddrPort,
) *BulkSender {
	return &BulkSender{
		appBase:  appBase{name: name},
		stack:    stack,
		remote:   remote,
		sendSize: DefaultSendSize,
	}
}

// SetSendSize sets the size of each write.
func (s *BulkSender) SetSendSize(n uint32) {
	if n == 0 {
		panic("send size must be positive")
	}

	s.sendSize = n
}

// SetMaxBytes limits the total bytes sent. Zero means no limit.
func (s *BulkSender) SetMaxBytes(n uint64) {
	s.maxBytes = n
}

// Remote returns the endpoint the sender connects to.
func (s *BulkSender) Remote() netip.AddrPort {
	return s.remote
}

// Conn returns the connection, or nil before the sender starts.
func (s *BulkSender) Conn() *tcp.Conn {
	return s.conn
}

// TotalTx returns the bytes accepted by the socket.
func (s *BulkSender) TotalTx() uint64 {
	return s.totalTx
}

// Install schedules the start and stop of the sender.
func (s *BulkSender) Install(engine timing.EventScheduler) error {
	return s.schedule(engine, s)
}

// Handle starts or stops the sender.
func (s *BulkSender) Handle(e timing.Event) error {
	switch e.(type) {
	case startEvent:
		return s.start()
	case stopEvent:
		s.stop()
		return nil
	default:
		return fmt.Errorf("%s cannot handle event %T", s.name, e)
	}
}

func (s *BulkSender) start() error {
	conn, err := s.stack.Dial(s.remote)
	if err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}

	s.conn = conn
	s.running = true

	conn.SetConnectedCallback(func(*tcp.Conn) error {
		s.connected = true
		return s.sendData()
	})
	conn.SetSendCallback(func(*tcp.Conn, uint32) error {
		if !s.connected {
			return nil
		}

		return s.sendData()
	})

	return nil
}

func (s *BulkSender) stop() {
	s.running = false
	s.connected = false

	if s.conn != nil {
		s.conn.Close()
	}
}

// sendData writes whole chunks until the socket is full.
func (s *BulkSender) sendData() error {
	for s.running && (s.maxBytes == 0 || s.totalTx < s.maxBytes) {
		size := s.sendSize
		if s.maxBytes > 0 {
			size = uint32(min(uint64(size), s.maxBytes-s.totalTx))
		}

		if s.conn.TxAvailable() < size {
			return nil
		}

		n, err := s.conn.Write(size)
		s.totalTx += uint64(n)

		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}

	return nil
}
