// Package experiment wires hosts, routers, TCP connections and applications
// into a dumbbell, runs it for a fixed horizon and reports the goodput of
// every flow.
package experiment

import (
	"errors"
	"fmt"

	"github.com/sarchlab/tcpgoodput/network"
	"github.com/sarchlab/tcpgoodput/sim/timing"
	"github.com/sarchlab/tcpgoodput/tcp"
)

// ErrInvalidConfig is returned when an experiment is described with values
// it cannot run.
var ErrInvalidConfig = errors.New("invalid experiment configuration")

// Fixed parameters of the experiment.
const (
	Horizon      timing.VTimeInSec = 10.0
	JitterMin    timing.VTimeInSec = 0.0
	JitterMax    timing.VTimeInSec = 0.1
	JitterSeed   uint64            = 11223344
	JitterStream uint64            = 6110

	BasePort       uint16 = 9
	SendChunkBytes uint32 = 512
)

// Links of the dumbbell. Leaves hang off the routers on LeafLink; the two
// routers share CoreLink, which is the bottleneck.
var (
	LeafLink = network.MustParseLinkSpec("5Mbps", "10ms")
	CoreLink = network.MustParseLinkSpec("1Mbps", "20ms")
)

// Config holds the knobs of one run.
type Config struct {
	FlowCount          uint32
	QueueCapacityBytes uint32
	WindowSizeBytes    uint32
	SegmentSizeBytes   uint32
}

// DefaultConfig returns one flow with a 64000-byte queue, a 2000-byte
// window and 512-byte segments.
func DefaultConfig() Config {
	return Config{
		FlowCount:          1,
		QueueCapacityBytes: 64000,
		WindowSizeBytes:    2000,
		SegmentSizeBytes:   512,
	}
}

// Validate checks that every field is usable.
func (c Config) Validate() error {
	if c.FlowCount == 0 {
		return fmt.Errorf("%w: at least one flow is required", ErrInvalidConfig)
	}

	if c.QueueCapacityBytes == 0 {
		return fmt.Errorf("%w: queue size must be positive", ErrInvalidConfig)
	}

	if c.WindowSizeBytes == 0 {
		return fmt.Errorf("%w: window size must be positive", ErrInvalidConfig)
	}

	if c.SegmentSizeBytes == 0 {
		return fmt.Errorf("%w: segment size must be positive", ErrInvalidConfig)
	}

	return nil
}

// TransportDefaults are the settings every node of the dumbbell shares: the
// TCP socket parameters and the queue of every point-to-point device.
type TransportDefaults struct {
	Variant       tcp.Variant
	QueueMode     network.QueueMode
	QueueCapacity uint32
	MaxWindowSize uint32
	WindowScaling bool
	SegmentSize   uint32

	SndBufSize    uint32
	RcvBufSize    uint32
	InitialCwnd   uint32
	DelAckCount   uint32
	DelAckTimeout timing.VTimeInSec
	InitialRTO    timing.VTimeInSec
	MinRTO        timing.VTimeInSec
}

// NewTransportDefaults derives the transport settings of a run. Queues count
// bytes and hold QueueCapacityBytes, sockets use Tahoe without window
// scaling and never advertise more than WindowSizeBytes.
func NewTransportDefaults(cfg Config) (TransportDefaults, error) {
	if err := cfg.Validate(); err != nil {
		return TransportDefaults{}, err
	}

	base := tcp.DefaultConfig()
	d := TransportDefaults{
		Variant:       tcp.Tahoe,
		QueueMode:     network.QueueModeBytes,
		QueueCapacity: cfg.QueueCapacityBytes,
		MaxWindowSize: cfg.WindowSizeBytes,
		WindowScaling: false,
		SegmentSize:   cfg.SegmentSizeBytes,
		SndBufSize:    base.SndBufSize,
		RcvBufSize:    base.RcvBufSize,
		InitialCwnd:   base.InitialCwnd,
		DelAckCount:   base.DelAckCount,
		DelAckTimeout: base.DelAckTimeout,
		InitialRTO:    base.InitialRTO,
		MinRTO:        base.MinRTO,
	}

	if err := d.Validate(); err != nil {
		return TransportDefaults{}, err
	}

	return d, nil
}

// WithVariant returns a copy that uses another loss recovery algorithm.
func (d TransportDefaults) WithVariant(v tcp.Variant) TransportDefaults {
	d.Variant = v
	return d
}

// Validate checks the socket and queue settings together.
func (d TransportDefaults) Validate() error {
	if err := d.QueueConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := d.TCPConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// TCPConfig converts the defaults to the configuration of a TCP stack.
func (d TransportDefaults) TCPConfig() tcp.Config {
	c := tcp.DefaultConfig()

	c.Variant = d.Variant
	c.SegmentSize = d.SegmentSize
	c.MaxWindowSize = d.MaxWindowSize
	c.WindowScaling = d.WindowScaling
	c.SndBufSize = d.SndBufSize
	c.RcvBufSize = d.RcvBufSize
	c.InitialCwnd = d.InitialCwnd
	c.DelAckCount = d.DelAckCount
	c.DelAckTimeout = d.DelAckTimeout
	c.InitialRTO = d.InitialRTO
	c.MinRTO = d.MinRTO

	return c
}

// QueueConfig converts the defaults to the configuration of a device queue.
func (d TransportDefaults) QueueConfig() network.QueueConfig {
	q := network.DefaultQueueConfig()
	q.Mode = d.QueueMode

	if d.QueueMode == network.QueueModeBytes {
		q.MaxBytes = d.QueueCapacity
	} else {
		q.MaxPackets = d.QueueCapacity
	}

	return q
}
