package montecarlo

import "math/rand/v2"

// TrialSeed derives the seed of trial k from the batch base seed. Nearby
// (base, k) pairs map to unrelated seeds.
func TrialSeed(base uint64, k int) uint64 {
	return splitmix64(base + uint64(k)*0x9e3779b97f4a7c15)
}

// NewRand returns a PCG generator seeded from seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, splitmix64(seed)))
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// randomSeed returns a non-zero seed from the runtime's random source.
func randomSeed() uint64 {
	for {
		if s := rand.Uint64(); s != 0 {
			return s
		}
	}
}
