package tcp

import (
	"math"

	"github.com/sarchlab/tcpgoodput/sim/timing"
)

// rttEstimator keeps the smoothed round-trip time and derives the
// retransmission timeout as in RFC 6298.
type rttEstimator struct {
	srtt      timing.VTimeInSec
	rttvar    timing.VTimeInSec
	rto       timing.VTimeInSec
	hasSample bool
	backoff   int

	minRTO      timing.VTimeInSec
	maxRTO      timing.VTimeInSec
	granularity timing.VTimeInSec
}

func newRTTEstimator(cfg Config) rttEstimator {
	return rttEstimator{
		rto:         cfg.InitialRTO,
		minRTO:      cfg.MinRTO,
		maxRTO:      cfg.MaxRTO,
		granularity: cfg.ClockGranularity,
	}
}

func (e *rttEstimator) sample(r timing.VTimeInSec) {
	if !e.hasSample {
		e.srtt = r
		e.rttvar = r / 2
		e.hasSample = true
	} else {
		e.rttvar = 0.75*e.rttvar + 0.25*math.Abs(e.srtt-r)
		e.srtt = 0.875*e.srtt + 0.125*r
	}

	e.rto = e.srtt + math.Max(e.granularity, 4*e.rttvar)
	e.rto = math.Min(math.Max(e.rto, e.minRTO), e.maxRTO)
	e.backoff = 0
}

func (e *rttEstimator) doubleTimeout() {
	e.backoff++
}

func (e *rttEstimator) resetBackoff() {
	e.backoff = 0
}

func (e *rttEstimator) timeout() timing.VTimeInSec {
	rto := e.rto * math.Pow(2, float64(e.backoff))

	return math.Min(rto, e.maxRTO)
}

// SmoothedRTT returns the current estimate, or zero before the first sample.
func (e *rttEstimator) SmoothedRTT() timing.VTimeInSec {
	return e.srtt
}
