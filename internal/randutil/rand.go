// Package randutil derives deterministic math/rand/v2 generators.
package randutil

import (
	"hash/fnv"
	rand "math/rand/v2"
	"time"
)

const goldenRatio64 = 0x9e3779b97f4a7c15

// New returns a PCG generator seeded from seed. Equal seeds give equal
// sequences.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// For derives an independent generator for a named stream (a table id, a
// tournament id) from a base seed, so tables never share a sequence.
func For(seed int64, name string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(name))
	return New(seed ^ int64(mix(h.Sum64())))
}

// Seed picks a base seed when none is configured.
func Seed() int64 {
	return time.Now().UnixNano()
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
