package sim

import (
	"hash/fnv"
	"math/rand"
)

// Named random streams drawn by call generation. Adding a stream never shifts
// the values of another, so a run stays reproducible when the generator grows.
const (
	// StreamArrivals draws inter-arrival and holding times. It is seeded with
	// the run seed itself.
	StreamArrivals = "arrivals"
	// StreamEndpoints picks source/destination pairs.
	StreamEndpoints = "endpoints"
	// StreamDemand draws bandwidth and security level.
	StreamDemand = "demand"
)

// Streams hands out one *rand.Rand per stream name, all derived from a
// single run seed. Not safe for concurrent use.
type Streams struct {
	seed    int64
	streams map[string]*rand.Rand
}

// NewStreams returns the stream set for seed.
func NewStreams(seed int64) *Streams {
	return &Streams{seed: seed, streams: map[string]*rand.Rand{}}
}

// Seed is the run seed the streams derive from.
func (s *Streams) Seed() int64 { return s.seed }

// Stream returns the generator for name, creating it on first use.
// Streams other than StreamArrivals are seeded with seed ^ fnv1a(name).
func (s *Streams) Stream(name string) *rand.Rand {
	r, ok := s.streams[name]
	if !ok {
		r = rand.New(rand.NewSource(s.streamSeed(name)))
		s.streams[name] = r
	}
	return r
}

func (s *Streams) streamSeed(name string) int64 {
	if name == StreamArrivals {
		return s.seed
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return s.seed ^ int64(h.Sum64())
}
