package experiment

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("JitterScheduler", func() {
	It("should draw the same offsets for the same seed and stream", func() {
		a := DefaultJitterScheduler().Offsets(16)
		b := DefaultJitterScheduler().Offsets(16)

		Expect(a).To(Equal(b))
	})

	It("should stay inside the window", func() {
		offsets := DefaultJitterScheduler().Offsets(1000)

		Expect(offsets).To(HaveLen(1000))
		for _, o := range offsets {
			Expect(o).To(BeNumerically(">=", JitterMin))
			Expect(o).To(BeNumerically("<=", JitterMax))
		}
	})

	It("should draw independent offsets", func() {
		offsets := DefaultJitterScheduler().Offsets(4)

		Expect(offsets[0]).ToNot(Equal(offsets[1]))
		Expect(offsets[1]).ToNot(Equal(offsets[2]))
	})

	It("should draw a different sequence on another stream", func() {
		a := NewJitterScheduler(JitterSeed, JitterStream, 0, 0.1).Offsets(4)
		b := NewJitterScheduler(JitterSeed, JitterStream+1, 0, 0.1).Offsets(4)

		Expect(a).ToNot(Equal(b))
	})

	It("should continue the sequence across calls", func() {
		all := DefaultJitterScheduler().Offsets(6)

		s := DefaultJitterScheduler()
		first := s.Offsets(3)
		second := s.Offsets(3)

		Expect(append(first, second...)).To(Equal(all))
	})

	It("should report how it was built", func() {
		s := NewJitterScheduler(1, 2, 0.5, 0.75)

		seed, stream := s.Seed()
		lo, hi := s.Window()

		Expect(seed).To(Equal(uint64(1)))
		Expect(stream).To(Equal(uint64(2)))
		Expect(lo).To(Equal(0.5))
		Expect(hi).To(Equal(0.75))
	})

	It("should panic on an empty window", func() {
		Expect(func() { NewJitterScheduler(1, 2, 0.2, 0.1) }).To(Panic())
	})
})
