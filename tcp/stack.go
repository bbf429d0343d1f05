package tcp

import (
	"errors"
	"fmt"
	"log"
	"net/netip"

	"github.com/sarchlab/tcpgoodput/network"
	"github.com/sarchlab/tcpgoodput/sim/hooking"
	"github.com/sarchlab/tcpgoodput/sim/timing"
)

var (
	// ErrPortInUse is returned when a listener already owns a port.
	ErrPortInUse = errors.New("port in use")

	// ErrNoEphemeralPort is returned when a stack ran out of local ports.
	ErrNoEphemeralPort = errors.New("no ephemeral port available")
)

const (
	firstEphemeralPort uint16 = 49153
	lastEphemeralPort  uint16 = 65535
)

type connKey struct {
	localPort  uint16
	remotePort uint16
	remote     netip.Addr
}

// A Stack is the TCP layer of a node. It owns every socket of the node and
// demultiplexes incoming segments to them.
type Stack struct {
	node   *network.Node
	engine timing.EventScheduler
	config Config

	listeners     map[uint16]*Listener
	conns         map[connKey]*Conn
	nextEphemeral uint16
	connHooks     []hooking.Hook

	// Unmatched counts segments no socket wanted.
	Unmatched uint64
}

// Install creates a stack and registers it as the protocol of the node.
func Install(node *network.Node, config Config) *Stack {
	if err := config.Validate(); err != nil {
		log.Panic(err)
	}

	s := &Stack{
		node:          node,
		engine:        node.Engine(),
		config:        config,
		listeners:     make(map[uint16]*Listener),
		conns:         make(map[connKey]*Conn),
		nextEphemeral: firstEphemeralPort,
	}
	node.InstallProtocol(s)

	return s
}

// Node returns the node the stack is installed on.
func (s *Stack) Node() *network.Node {
	return s.node
}

// Config returns the socket parameters of the stack.
func (s *Stack) Config() Config {
	return s.config
}

// NumConns returns the number of open connections.
func (s *Stack) NumConns() int {
	return len(s.conns)
}

// AcceptConnHook registers a hook on every connection opened from now on.
func (s *Stack) AcceptConnHook(hook hooking.Hook) {
	s.connHooks = append(s.connHooks, hook)
}

// Listen opens a passive socket. The accept callback fires once per
// connection, when the handshake completes.
func (s *Stack) Listen(port uint16, onAccept func(*Conn)) (*Listener, error) {
	if _, found := s.listeners[port]; found {
		return nil, fmt.Errorf("%w: %s:%d", ErrPortInUse, s.node.Name(), port)
	}

	l := &Listener{
		stack:    s,
		port:     port,
		onAccept: onAccept,
	}
	s.listeners[port] = l

	return l, nil
}

// Dial opens an active connection to the remote endpoint. The SYN is sent
// immediately.
func (s *Stack) Dial(remote netip.AddrPort) (*Conn, error) {
	src, err := s.node.SourceAddressFor(remote.Addr())
	if err != nil {
		return nil, err
	}

	port, err := s.allocatePort(remote)
	if err != nil {
		return nil, err
	}

	c := newConn(s, netip.AddrPortFrom(src, port), remote)
	s.conns[c.key()] = c

	if err := c.connect(); err != nil {
		delete(s.conns, c.key())
		return nil, err
	}

	return c, nil
}

func (s *Stack) allocatePort(remote netip.AddrPort) (uint16, error) {
	span := int(lastEphemeralPort-firstEphemeralPort) + 1
	for i := 0; i < span; i++ {
		port := s.nextEphemeral
		if s.nextEphemeral == lastEphemeralPort {
			s.nextEphemeral = firstEphemeralPort
		} else {
			s.nextEphemeral++
		}

		key := connKey{localPort: port, remotePort: remote.Port(),
			remote: remote.Addr()}
		_, used := s.conns[key]
		_, listening := s.listeners[port]
		if !used && !listening {
			return port, nil
		}
	}

	return 0, fmt.Errorf("%w on %s", ErrNoEphemeralPort, s.node.Name())
}

// Receive implements network.Protocol.
func (s *Stack) Receive(pkt *network.Packet, _ *network.Device) error {
	seg, ok := pkt.Payload.(*Segment)
	if !ok {
		return fmt.Errorf("%s: packet %d does not carry a tcp segment",
			s.node.Name(), pkt.ID)
	}

	key := connKey{localPort: seg.DstPort, remotePort: seg.SrcPort,
		remote: pkt.Src}
	if c, found := s.conns[key]; found {
		return c.receive(seg)
	}

	l, found := s.listeners[seg.DstPort]
	if found && seg.Flags == FlagSYN {
		return l.accept(pkt, seg)
	}

	s.Unmatched++

	return nil
}

func (s *Stack) send(c *Conn, seg *Segment) error {
	pkt := s.node.NewPacket(c.local.Addr(), c.remote.Addr(), seg.Size(), seg)

	return s.node.Send(pkt)
}

func (s *Stack) remove(c *Conn) {
	if s.conns[c.key()] == c {
		delete(s.conns, c.key())
	}
}

// A Listener accepts connections on a port.
type Listener struct {
	stack    *Stack
	port     uint16
	onAccept func(*Conn)
	closed   bool
}

// Port returns the listening port.
func (l *Listener) Port() uint16 {
	return l.port
}

// Close stops accepting new connections. Established connections stay open.
func (l *Listener) Close() {
	if l.closed {
		return
	}

	l.closed = true
	delete(l.stack.listeners, l.port)
}

func (l *Listener) accept(pkt *network.Packet, syn *Segment) error {
	local := netip.AddrPortFrom(pkt.Dst, l.port)
	remote := netip.AddrPortFrom(pkt.Src, syn.SrcPort)

	c := newConn(l.stack, local, remote)
	c.listener = l
	l.stack.conns[c.key()] = c

	return c.acceptSyn(syn)
}
