package experiment

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sarchlab/tcpgoodput/sim/timing"
)

// A JitterScheduler draws the start offsets of the senders. Two schedulers
// built with the same seed and stream produce the same offsets.
type JitterScheduler struct {
	seed   uint64
	stream uint64
	dist   distuv.Uniform
}

// NewJitterScheduler creates a scheduler that draws uniformly from
// [min, max).
func NewJitterScheduler(
	seed, stream uint64,
	min, max timing.VTimeInSec,
) *JitterScheduler {
	if max < min {
		panic(fmt.Sprintf("jitter window [%g, %g] is empty", min, max))
	}

	return &JitterScheduler{
		seed:   seed,
		stream: stream,
		dist: distuv.Uniform{
			Min: min,
			Max: max,
			Src: rand.NewPCG(seed, stream),
		},
	}
}

// DefaultJitterScheduler uses the fixed seed, stream and window of the
// experiment.
func DefaultJitterScheduler() *JitterScheduler {
	return NewJitterScheduler(JitterSeed, JitterStream, JitterMin, JitterMax)
}

// Seed returns the seed and the stream of the generator.
func (s *JitterScheduler) Seed() (seed, stream uint64) {
	return s.seed, s.stream
}

// Window returns the bounds of the draws.
func (s *JitterScheduler) Window() (min, max timing.VTimeInSec) {
	return s.dist.Min, s.dist.Max
}

// Offsets draws the next n offsets.
func (s *JitterScheduler) Offsets(n int) []timing.VTimeInSec {
	offsets := make([]timing.VTimeInSec, n)
	for i := range offsets {
		offsets[i] = s.dist.Rand()
	}

	return offsets
}
