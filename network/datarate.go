package network

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sarchlab/tcpgoodput/sim/timing"
)

// DataRate is a transmission rate in bits per second.
type DataRate float64

// Units of DataRate.
const (
	BitPerSecond  DataRate = 1
	KbitPerSecond DataRate = 1e3
	MbitPerSecond DataRate = 1e6
	GbitPerSecond DataRate = 1e9
)

var rateSuffixes = []struct {
	suffix string
	unit   DataRate
}{
	{"Gbps", GbitPerSecond},
	{"Mbps", MbitPerSecond},
	{"kbps", KbitPerSecond},
	{"Kbps", KbitPerSecond},
	{"bps", BitPerSecond},
}

// ParseDataRate parses rates such as "5Mbps", "500kbps" or "100bps".
func ParseDataRate(s string) (DataRate, error) {
	for _, rs := range rateSuffixes {
		if !strings.HasSuffix(s, rs.suffix) {
			continue
		}

		value, err := strconv.ParseFloat(strings.TrimSuffix(s, rs.suffix), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: rate %q: %w", ErrInvalidLink, s, err)
		}

		if value <= 0 {
			return 0, fmt.Errorf("%w: rate %q must be positive",
				ErrInvalidLink, s)
		}

		return DataRate(value) * rs.unit, nil
	}

	return 0, fmt.Errorf("%w: rate %q has no known unit", ErrInvalidLink, s)
}

// TransmissionTime returns how long it takes to serialize the given number
// of bytes onto a link of this rate.
func (r DataRate) TransmissionTime(bytes int) timing.VTimeInSec {
	return timing.VTimeInSec(float64(bytes) * 8 / float64(r))
}

// BytesPerSecond converts the rate to bytes per second.
func (r DataRate) BytesPerSecond() float64 {
	return float64(r) / 8
}

func (r DataRate) String() string {
	switch {
	case r >= GbitPerSecond:
		return strconv.FormatFloat(float64(r/GbitPerSecond), 'g', -1, 64) + "Gbps"
	case r >= MbitPerSecond:
		return strconv.FormatFloat(float64(r/MbitPerSecond), 'g', -1, 64) + "Mbps"
	case r >= KbitPerSecond:
		return strconv.FormatFloat(float64(r/KbitPerSecond), 'g', -1, 64) + "kbps"
	default:
		return strconv.FormatFloat(float64(r), 'g', -1, 64) + "bps"
	}
}

// LinkSpec describes a point-to-point link.
type LinkSpec struct {
	DataRate DataRate
	Delay    timing.VTimeInSec
}

// ParseLinkSpec builds a LinkSpec from strings like "5Mbps" and "10ms".
func ParseLinkSpec(rate, delay string) (LinkSpec, error) {
	r, err := ParseDataRate(rate)
	if err != nil {
		return LinkSpec{}, err
	}

	d, err := time.ParseDuration(delay)
	if err != nil {
		return LinkSpec{}, fmt.Errorf("%w: delay %q: %w",
			ErrInvalidLink, delay, err)
	}

	if d < 0 {
		return LinkSpec{}, fmt.Errorf("%w: delay %q is negative",
			ErrInvalidLink, delay)
	}

	return LinkSpec{DataRate: r, Delay: d.Seconds()}, nil
}

// MustParseLinkSpec is ParseLinkSpec for compile-time constants.
func MustParseLinkSpec(rate, delay string) LinkSpec {
	spec, err := ParseLinkSpec(rate, delay)
	if err != nil {
		panic(err)
	}

	return spec
}

func (s LinkSpec) String() string {
	return fmt.Sprintf("%s/%gms", s.DataRate, s.Delay*1e3)
}
