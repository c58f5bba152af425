package compress

/* rng.go contains a small xorshift generator. Runs must be reproducible from
a seed on every process, so the generator is explicit rather than global. */

import (
	"math"
)

const xorshiftMax = float64(math.MaxUint32)

// RNG is an xorshift random number generator. It is not thread safe.
type RNG struct {
	w, x, y, z uint32
}

// NewRNG creates a generator from a seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{uint32(seed) ^ uint32(seed>>32), 123456789, 362436069, 521288629}
}

func (gen *RNG) next() uint32 {
	t := gen.x ^ (gen.x << 11)
	gen.x, gen.y, gen.z = gen.y, gen.z, gen.w
	gen.w = gen.w ^ (gen.w >> 19) ^ (t ^ (t >> 8))
	return gen.w
}

// Uniform returns a random number in [0, 1).
func (gen *RNG) Uniform() float64 {
	for {
		res := float64(math.MaxUint32-gen.next()) / xorshiftMax
		if res < 1 {
			return res
		}
	}
}

// Range returns a random number in [lo, hi).
func (gen *RNG) Range(lo, hi float64) float64 {
	return lo + (hi-lo)*gen.Uniform()
}

// UniformSequence fills target with random numbers in [0, 1).
func (gen *RNG) UniformSequence(target []float64) {
	for i := range target {
		target[i] = gen.Uniform()
	}
}
