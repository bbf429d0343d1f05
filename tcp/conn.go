package tcp

import (
	"fmt"
	"net/netip"

	"github.com/sarchlab/tcpgoodput/sim/hooking"
	"github.com/sarchlab/tcpgoodput/sim/timing"
)

// HookPosCwndChange marks a change of the congestion window. The detail is
// the new window in bytes.
var HookPosCwndChange = &hooking.HookPos{Name: "TCP Cwnd Change"}

// HookPosRetransmit marks a segment sent again. The detail is its sequence
// number.
var HookPosRetransmit = &hooking.HookPos{Name: "TCP Retransmit"}

// HookPosTimeout marks an expired retransmission timer. The detail is the
// timeout that expired.
var HookPosTimeout = &hooking.HookPos{Name: "TCP Timeout"}

// State is the connection state.
type State int

// Connection states.
const (
	StateClosed State = iota
	StateSynSent
	StateSynRcvd
	StateEstablished
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateSynSent:
		return "SYN_SENT"
	case StateSynRcvd:
		return "SYN_RCVD"
	case StateEstablished:
		return "ESTABLISHED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type rtoEvent struct {
	*timing.EventBase
	generation uint64
}

type delAckEvent struct {
	*timing.EventBase
	generation uint64
}

type interval struct {
	start, end uint64
}

// A Conn is one end of a TCP connection. Application data is counted rather
// than stored.
type Conn struct {
	hooking.HookableBase

	stack    *Stack
	listener *Listener
	cfg      Config
	local    netip.AddrPort
	remote   netip.AddrPort
	state    State

	iss    uint64
	sndUna uint64
	sndNxt uint64
	sndMax uint64
	txEnd  uint64

	cwnd           uint32
	ssthresh       uint32
	rwnd           uint32
	dupAcks        int
	inFastRecovery bool

	rtt        rttEstimator
	rtoGen     uint64
	rtoPending bool
	timingRTT  bool
	timedSeq   uint64
	timedAt    timing.VTimeInSec
	synRetries int

	rcvNxt        uint64
	outOfOrder    []interval
	oooBytes      uint64
	ackPending    uint32
	delAckGen     uint64
	delAckPending bool

	onConnected func(*Conn) error
	onSend      func(*Conn, uint32) error
	onRecv      func(*Conn, uint64)

	BytesAcked    uint64
	BytesReceived uint64
	Retransmits   uint64
	Timeouts      uint64
}

func newConn(s *Stack, local, remote netip.AddrPort) *Conn {
	cfg := s.config

	c := &Conn{
		stack:    s,
		cfg:      cfg,
		local:    local,
		remote:   remote,
		cwnd:     cfg.InitialCwnd * cfg.SegmentSize,
		ssthresh: cfg.InitialSsThresh,
		rtt:      newRTTEstimator(cfg),
	}

	for _, h := range s.connHooks {
		c.AcceptHook(h)
	}

	return c
}

func (c *Conn) key() connKey {
	return connKey{
		localPort:  c.local.Port(),
		remotePort: c.remote.Port(),
		remote:     c.remote.Addr(),
	}
}

// Name identifies the connection by its endpoints.
func (c *Conn) Name() string {
	return fmt.Sprintf("%s->%s", c.local, c.remote)
}

// LocalAddr returns the local endpoint.
func (c *Conn) LocalAddr() netip.AddrPort {
	return c.local
}

// RemoteAddr returns the remote endpoint.
func (c *Conn) RemoteAddr() netip.AddrPort {
	return c.remote
}

// State returns the connection state.
func (c *Conn) State() State {
	return c.state
}

// Cwnd returns the congestion window in bytes.
func (c *Conn) Cwnd() uint32 {
	return c.cwnd
}

// SsThresh returns the slow start threshold in bytes.
func (c *Conn) SsThresh() uint32 {
	return c.ssthresh
}

// SmoothedRTT returns the current round-trip estimate.
func (c *Conn) SmoothedRTT() timing.VTimeInSec {
	return c.rtt.SmoothedRTT()
}

// SetConnectedCallback registers the function called when an active open
// completes.
func (c *Conn) SetConnectedCallback(f func(*Conn) error) {
	c.onConnected = f
}

// SetSendCallback registers the function called when send buffer space is
// freed. It receives the free space in bytes.
func (c *Conn) SetSendCallback(f func(*Conn, uint32) error) {
	c.onSend = f
}

// SetRecvCallback registers the function called when in-order data becomes
// available. It receives the number of new bytes.
func (c *Conn) SetRecvCallback(f func(*Conn, uint64)) {
	c.onRecv = f
}

// TxAvailable returns the free space of the send buffer.
func (c *Conn) TxAvailable() uint32 {
	if c.state == StateClosed {
		return 0
	}

	buffered := c.txEnd - c.dataUna()

	return c.cfg.SndBufSize - uint32(buffered)
}

// Write appends n bytes to the send buffer and returns how many were
// accepted.
func (c *Conn) Write(n uint32) (uint32, error) {
	accepted := min(n, c.TxAvailable())
	if accepted == 0 {
		return 0, nil
	}

	c.txEnd += uint64(accepted)

	if c.state == StateEstablished {
		if err := c.sendPending(); err != nil {
			return accepted, err
		}
	}

	return accepted, nil
}

// Close releases the connection without a closing handshake. Segments that
// arrive afterwards are ignored by the stack.
func (c *Conn) Close() {
	if c.state == StateClosed {
		return
	}

	c.state = StateClosed
	c.cancelRTO()
	c.cancelDelAck()
	c.stack.remove(c)
}

// dataUna is the first unacknowledged data byte. The SYN occupies iss.
func (c *Conn) dataUna() uint64 {
	return max(c.sndUna, c.iss+1)
}

func (c *Conn) now() timing.VTimeInSec {
	return c.stack.engine.Now()
}

func (c *Conn) advertisedWindow() uint32 {
	free := uint64(c.cfg.RcvBufSize) - min(c.oooBytes, uint64(c.cfg.RcvBufSize))

	return c.cfg.advertisableWindow(uint32(free))
}

func (c *Conn) connect() error {
	c.state = StateSynSent
	c.sndUna = c.iss
	c.sndNxt = c.iss + 1
	c.sndMax = c.sndNxt
	c.txEnd = c.sndNxt

	return c.sendSyn()
}

func (c *Conn) sendSyn() error {
	if c.rtt.backoff == 0 {
		c.startTiming(c.iss)
	}

	c.armRTO()

	return c.transmit(&Segment{
		Seq:    c.iss,
		Flags:  FlagSYN,
		Window: c.advertisedWindow(),
	})
}

func (c *Conn) acceptSyn(syn *Segment) error {
	c.state = StateSynRcvd
	c.rcvNxt = syn.Seq + 1
	c.rwnd = syn.Window
	c.sndUna = c.iss
	c.sndNxt = c.iss + 1
	c.sndMax = c.sndNxt
	c.txEnd = c.sndNxt

	return c.sendSynAck()
}

func (c *Conn) sendSynAck() error {
	if c.rtt.backoff == 0 {
		c.startTiming(c.iss)
	}

	c.armRTO()

	return c.transmit(&Segment{
		Seq:    c.iss,
		Ack:    c.rcvNxt,
		Flags:  FlagSYN | FlagACK,
		Window: c.advertisedWindow(),
	})
}

func (c *Conn) transmit(seg *Segment) error {
	seg.SrcPort = c.local.Port()
	seg.DstPort = c.remote.Port()

	return c.stack.send(c, seg)
}

func (c *Conn) receive(seg *Segment) error {
	switch c.state {
	case StateSynSent:
		return c.receiveInSynSent(seg)
	case StateSynRcvd:
		return c.receiveInSynRcvd(seg)
	case StateEstablished:
		return c.receiveInEstablished(seg)
	default:
		return nil
	}
}

func (c *Conn) receiveInSynSent(seg *Segment) error {
	if !seg.Flags.Has(FlagSYN|FlagACK) || seg.Ack != c.iss+1 {
		return nil
	}

	c.rcvNxt = seg.Seq + 1
	c.rwnd = seg.Window
	c.establish(seg.Ack)

	if err := c.sendAck(); err != nil {
		return err
	}

	if c.onConnected != nil {
		if err := c.onConnected(c); err != nil {
			return err
		}
	}

	return c.sendPending()
}

func (c *Conn) receiveInSynRcvd(seg *Segment) error {
	if seg.Flags == FlagSYN {
		return c.sendSynAck()
	}

	if !seg.Flags.Has(FlagACK) || seg.Ack != c.iss+1 {
		return nil
	}

	c.rwnd = seg.Window
	c.establish(seg.Ack)

	if c.listener != nil && c.listener.onAccept != nil {
		c.listener.onAccept(c)
	}

	if seg.PayloadSize > 0 {
		return c.processData(seg)
	}

	return nil
}

func (c *Conn) establish(ack uint64) {
	c.state = StateEstablished
	c.sndUna = ack
	c.sndNxt = max(c.sndNxt, ack)
	c.sampleRTT(ack)
	c.rtt.resetBackoff()
	c.cancelRTO()
}

func (c *Conn) receiveInEstablished(seg *Segment) error {
	if seg.Flags.Has(FlagSYN) {
		// The peer did not see our handshake ACK.
		if seg.Flags.Has(FlagACK) {
			return c.sendAck()
		}

		return nil
	}

	if seg.Flags.Has(FlagACK) {
		if err := c.processAck(seg); err != nil {
			return err
		}
	}

	if seg.PayloadSize > 0 {
		return c.processData(seg)
	}

	return nil
}

func (c *Conn) processAck(seg *Segment) error {
	ack := seg.Ack

	switch {
	case ack > c.sndMax:
		return nil
	case ack > c.sndUna:
		return c.processNewAck(seg)
	case ack == c.sndUna:
		return c.processDupAck(seg)
	default:
		return nil
	}
}

func (c *Conn) processNewAck(seg *Segment) error {
	acked := seg.Ack - c.sndUna
	c.sndUna = seg.Ack
	c.sndNxt = max(c.sndNxt, c.sndUna)
	c.rwnd = seg.Window
	c.BytesAcked += acked

	c.sampleRTT(seg.Ack)
	c.rtt.resetBackoff()

	c.growWindow()
	c.dupAcks = 0

	if c.sndUna == c.sndMax {
		c.cancelRTO()
	} else {
		c.armRTO()
	}

	if c.onSend != nil {
		if err := c.onSend(c, c.TxAvailable()); err != nil {
			return err
		}
	}

	return c.sendPending()
}

func (c *Conn) growWindow() {
	seg := c.cfg.SegmentSize

	switch {
	case c.inFastRecovery:
		c.inFastRecovery = false
		c.cwnd = c.ssthresh
	case c.cwnd < c.ssthresh:
		c.cwnd += seg
	default:
		c.cwnd += max(1, seg*seg/c.cwnd)
	}

	c.cwndChanged()
}

func (c *Conn) processDupAck(seg *Segment) error {
	windowUpdate := seg.Window != c.rwnd
	c.rwnd = seg.Window

	if seg.PayloadSize > 0 || windowUpdate || c.sndMax == c.sndUna {
		if windowUpdate {
			return c.sendPending()
		}

		return nil
	}

	c.dupAcks++

	switch {
	case c.dupAcks == 3:
		return c.fastRetransmit()
	case c.dupAcks > 3 && c.inFastRecovery:
		c.cwnd += c.cfg.SegmentSize
		c.cwndChanged()

		return c.sendPending()
	default:
		return nil
	}
}

func (c *Conn) reduceSsThresh() {
	flight := uint32(c.sndMax - c.sndUna)
	c.ssthresh = max(flight/2, 2*c.cfg.SegmentSize)
}

func (c *Conn) fastRetransmit() error {
	c.reduceSsThresh()
	c.timingRTT = false

	if c.cfg.Variant == Reno {
		c.cwnd = c.ssthresh + 3*c.cfg.SegmentSize
		c.inFastRecovery = true
		c.cwndChanged()

		size := min(uint64(c.cfg.SegmentSize), c.txEnd-c.sndUna)
		if err := c.sendData(c.sndUna, uint32(size)); err != nil {
			return err
		}

		c.armRTO()

		return c.sendPending()
	}

	c.cwnd = c.cfg.SegmentSize
	c.sndNxt = c.sndUna
	c.cwndChanged()
	c.armRTO()

	return c.sendPending()
}

func (c *Conn) sendPending() error {
	if c.state != StateEstablished {
		return nil
	}

	for c.sndNxt < c.txEnd {
		window := uint64(min(c.cwnd, c.rwnd))
		inFlight := c.sndNxt - c.sndUna

		var avail uint64
		if window > inFlight {
			avail = window - inFlight
		}

		// A window smaller than a segment only carries the tail of the
		// data. Anything else waits for the window to open.
		remaining := c.txEnd - c.sndNxt
		if avail < uint64(c.cfg.SegmentSize) && remaining > avail {
			return nil
		}

		size := min(uint64(c.cfg.SegmentSize), remaining)

		if err := c.sendData(c.sndNxt, uint32(size)); err != nil {
			return err
		}

		c.sndNxt += size
		c.sndMax = max(c.sndMax, c.sndNxt)
	}

	return nil
}

func (c *Conn) sendData(seq uint64, size uint32) error {
	if seq < c.sndMax {
		c.Retransmits++
		c.invokeHook(HookPosRetransmit, seq)
	} else if !c.timingRTT {
		c.startTiming(seq)
	}

	if !c.rtoPending {
		c.armRTO()
	}

	c.ackPending = 0
	c.cancelDelAck()

	return c.transmit(&Segment{
		Seq:         seq,
		Ack:         c.rcvNxt,
		Flags:       FlagACK,
		Window:      c.advertisedWindow(),
		PayloadSize: int(size),
	})
}

func (c *Conn) startTiming(seq uint64) {
	c.timingRTT = true
	c.timedSeq = seq
	c.timedAt = c.now()
}

func (c *Conn) sampleRTT(ack uint64) {
	if !c.timingRTT || ack <= c.timedSeq {
		return
	}

	c.timingRTT = false
	c.rtt.sample(c.now() - c.timedAt)
}

func (c *Conn) processData(seg *Segment) error {
	start := seg.Seq
	end := seg.Seq + uint64(seg.PayloadSize)

	if end <= c.rcvNxt {
		return c.sendAck()
	}

	if start > c.rcvNxt {
		if end-c.rcvNxt <= uint64(c.cfg.RcvBufSize) {
			c.bufferOutOfOrder(interval{start: start, end: end})
		}

		return c.sendAck()
	}

	newBytes := end - c.rcvNxt
	c.rcvNxt = end

	filled := false
	for len(c.outOfOrder) > 0 && c.outOfOrder[0].start <= c.rcvNxt {
		head := c.outOfOrder[0]
		if head.end > c.rcvNxt {
			newBytes += head.end - c.rcvNxt
			c.rcvNxt = head.end
		}

		c.oooBytes -= head.end - head.start
		c.outOfOrder = c.outOfOrder[1:]
		filled = true
	}

	c.BytesReceived += newBytes
	if c.onRecv != nil {
		c.onRecv(c, newBytes)
	}

	if filled || len(c.outOfOrder) > 0 {
		return c.sendAck()
	}

	c.ackPending++
	if c.ackPending >= c.cfg.DelAckCount {
		return c.sendAck()
	}

	if !c.delAckPending {
		c.armDelAck()
	}

	return nil
}

// bufferOutOfOrder inserts the interval keeping the list sorted and
// non-overlapping.
func (c *Conn) bufferOutOfOrder(in interval) {
	merged := make([]interval, 0, len(c.outOfOrder)+1)
	inserted := false

	for _, cur := range c.outOfOrder {
		switch {
		case cur.end < in.start:
			merged = append(merged, cur)
		case in.end < cur.start:
			if !inserted {
				merged = append(merged, in)
				inserted = true
			}

			merged = append(merged, cur)
		default:
			in.start = min(in.start, cur.start)
			in.end = max(in.end, cur.end)
		}
	}

	if !inserted {
		merged = append(merged, in)
	}

	c.outOfOrder = merged
	c.oooBytes = 0
	for _, iv := range merged {
		c.oooBytes += iv.end - iv.start
	}
}

func (c *Conn) sendAck() error {
	c.ackPending = 0
	c.cancelDelAck()

	return c.transmit(&Segment{
		Seq:    c.sndNxt,
		Ack:    c.rcvNxt,
		Flags:  FlagACK,
		Window: c.advertisedWindow(),
	})
}

func (c *Conn) armRTO() {
	c.rtoGen++
	c.rtoPending = true

	rto := c.rtt.timeout()
	evt := &rtoEvent{
		EventBase:  timing.NewEventBase(c.now()+rto, c),
		generation: c.rtoGen,
	}
	c.stack.engine.Schedule(evt)
}

func (c *Conn) cancelRTO() {
	c.rtoGen++
	c.rtoPending = false
}

func (c *Conn) armDelAck() {
	c.delAckGen++
	c.delAckPending = true

	evt := &delAckEvent{
		EventBase:  timing.NewEventBase(c.now()+c.cfg.DelAckTimeout, c),
		generation: c.delAckGen,
	}
	c.stack.engine.Schedule(evt)
}

func (c *Conn) cancelDelAck() {
	c.delAckGen++
	c.delAckPending = false
}

// Handle processes the timer events of the connection.
func (c *Conn) Handle(e timing.Event) error {
	switch evt := e.(type) {
	case *rtoEvent:
		if !c.rtoPending || evt.generation != c.rtoGen {
			return nil
		}

		c.rtoPending = false

		return c.onTimeout()
	case *delAckEvent:
		if !c.delAckPending || evt.generation != c.delAckGen {
			return nil
		}

		c.delAckPending = false
		if c.state != StateEstablished || c.ackPending == 0 {
			return nil
		}

		return c.sendAck()
	default:
		return fmt.Errorf("connection %s cannot handle event %T", c.Name(), e)
	}
}

func (c *Conn) onTimeout() error {
	c.invokeHook(HookPosTimeout, c.rtt.timeout())
	c.rtt.doubleTimeout()
	c.timingRTT = false

	switch c.state {
	case StateSynSent:
		c.synRetries++
		if c.synRetries > c.cfg.SynRetries {
			c.Close()
			return nil
		}

		return c.sendSyn()
	case StateSynRcvd:
		return c.sendSynAck()
	case StateEstablished:
		if c.sndUna == c.sndMax {
			return nil
		}

		c.Timeouts++
		c.reduceSsThresh()
		c.cwnd = c.cfg.SegmentSize
		c.sndNxt = c.sndUna
		c.dupAcks = 0
		c.inFastRecovery = false
		c.cwndChanged()

		c.armRTO()

		return c.sendPending()
	default:
		return nil
	}
}

func (c *Conn) cwndChanged() {
	c.invokeHook(HookPosCwndChange, c.cwnd)
}

func (c *Conn) invokeHook(pos *hooking.HookPos, detail interface{}) {
	if c.NumHooks() == 0 {
		return
	}

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    pos,
		Item:   c,
		Detail: detail,
	})
}
