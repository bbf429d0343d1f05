// Package tcp implements the TCP sockets of the simulated hosts: a
// three-way handshake, cumulative and delayed ACKs, retransmission timers and
// Tahoe or Reno congestion control.
package tcp

import (
	"errors"
	"fmt"

	"github.com/sarchlab/tcpgoodput/sim/timing"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid tcp configuration")

// MaxUnscaledWindow is the largest window a header can advertise without the
// window scale option.
const MaxUnscaledWindow = 65535

// Variant selects the loss recovery algorithm.
type Variant string

// Supported variants.
const (
	// Tahoe falls back to one segment and slow start on every loss.
	Tahoe Variant = "Tahoe"

	// Reno adds fast recovery after three duplicate ACKs.
	Reno Variant = "Reno"
)

// ParseVariant converts a name to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case Tahoe, Reno:
		return Variant(s), nil
	default:
		return "", fmt.Errorf("%w: unknown variant %q", ErrInvalidConfig, s)
	}
}

// Config holds the parameters shared by every socket of a stack.
type Config struct {
	Variant       Variant
	SegmentSize   uint32
	MaxWindowSize uint32
	WindowScaling bool

	SndBufSize      uint32
	RcvBufSize      uint32
	InitialCwnd     uint32 // in segments
	InitialSsThresh uint32

	DelAckCount   uint32
	DelAckTimeout timing.VTimeInSec

	InitialRTO       timing.VTimeInSec
	MinRTO           timing.VTimeInSec
	MaxRTO           timing.VTimeInSec
	ClockGranularity timing.VTimeInSec
	SynRetries       int
}

// DefaultConfig returns the parameters of a classic BSD-derived stack.
func DefaultConfig() Config {
	return Config{
		Variant:          Tahoe,
		SegmentSize:      536,
		MaxWindowSize:    MaxUnscaledWindow,
		WindowScaling:    false,
		SndBufSize:       131072,
		RcvBufSize:       131072,
		InitialCwnd:      1,
		InitialSsThresh:  MaxUnscaledWindow,
		DelAckCount:      2,
		DelAckTimeout:    0.2,
		InitialRTO:       1.0,
		MinRTO:           1.0,
		MaxRTO:           60.0,
		ClockGranularity: 0.001,
		SynRetries:       6,
	}
}

// Validate makes sure the configuration can drive a connection.
func (c Config) Validate() error {
	if _, err := ParseVariant(string(c.Variant)); err != nil {
		return err
	}

	switch {
	case c.SegmentSize == 0:
		return fmt.Errorf("%w: segment size must be positive", ErrInvalidConfig)
	case c.MaxWindowSize == 0:
		return fmt.Errorf("%w: max window size must be positive", ErrInvalidConfig)
	case c.SndBufSize < c.SegmentSize:
		return fmt.Errorf("%w: send buffer smaller than a segment",
			ErrInvalidConfig)
	case c.RcvBufSize < c.SegmentSize:
		return fmt.Errorf("%w: receive buffer smaller than a segment",
			ErrInvalidConfig)
	case c.InitialCwnd == 0:
		return fmt.Errorf("%w: initial cwnd must be positive", ErrInvalidConfig)
	case c.DelAckCount == 0:
		return fmt.Errorf("%w: delayed ACK count must be positive",
			ErrInvalidConfig)
	case c.MinRTO <= 0 || c.InitialRTO <= 0 || c.MaxRTO < c.MinRTO:
		return fmt.Errorf("%w: bad retransmission timeout bounds",
			ErrInvalidConfig)
	}

	return nil
}

// advertisableWindow caps a window to what the header can carry.
func (c Config) advertisableWindow(free uint32) uint32 {
	w := min(free, c.MaxWindowSize)
	if !c.WindowScaling {
		w = min(w, MaxUnscaledWindow)
	}

	return w
}
