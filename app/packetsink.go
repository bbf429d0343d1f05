package app

import (
	"fmt"

	"github.com/sarchlab/tcpgoodput/sim/timing"
	"github.com/sarchlab/tcpgoodput/tcp"
)

// A PacketSink accepts connections on a port and counts the bytes it
// receives.
type PacketSink struct {
	appBase

	stack    *tcp.Stack
	port     uint16
	listener *tcp.Listener
	accepted []*tcp.Conn
	totalRx  uint64
}

// NewPacketSink creates a sink that will listen on the port of the stack.
func NewPacketSink(name string, stack *tcp.Stack, port uint16) *PacketSink {
	return &PacketSink{
		appBase: appBase{name: name},
		stack:   stack,
		port:    port,
	}
}

// Port returns the listening port.
func (s *PacketSink) Port() uint16 {
	return s.port
}

// TotalRx returns the bytes received while the sink was running.
func (s *PacketSink) TotalRx() uint64 {
	return s.totalRx
}

// Accepted returns the connections accepted so far.
func (s *PacketSink) Accepted() []*tcp.Conn {
	return s.accepted
}

// Install schedules the start and stop of the sink.
func (s *PacketSink) Install(engine timing.EventScheduler) error {
	return s.schedule(engine, s)
}

// Handle starts or stops the sink.
func (s *PacketSink) Handle(e timing.Event) error {
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

func (s *PacketSink) start() error {
	l, err := s.stack.Listen(s.port, s.accept)
	if err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}

	s.listener = l
	s.running = true

	return nil
}

func (s *PacketSink) accept(c *tcp.Conn) {
	s.accepted = append(s.accepted, c)
	c.SetRecvCallback(func(_ *tcp.Conn, n uint64) {
		if s.running {
			s.totalRx += n
		}
	})
}

func (s *PacketSink) stop() {
	s.running = false

	if s.listener != nil {
		s.listener.Close()
	}

	for _, c := range s.accepted {
		c.Close()
	}
}
