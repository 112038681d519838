package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// RandomSource is the uniform random stream consumed by the engines.
// *rand.Rand satisfies it.
type RandomSource interface {
	Intn(n int) int
	Float64() float64
}

// Stream names. Each names one independent source of randomness in a run.
const (
	// StreamAccessPoint draws the first-beacon jitter.
	StreamAccessPoint = "ap"
	// StreamMedium draws frame losses.
	StreamMedium = "medium"
	// StreamTraffic picks the station that receives downlink data.
	StreamTraffic = "traffic"
	// StreamArrivals draws station start times from the scenario seed itself,
	// so --seed alone reproduces the arrival pattern.
	StreamArrivals = "arrivals"
)

// StationStream names the backoff stream of the station with index i.
func StationStream(i int) string {
	return fmt.Sprintf("station_%d", i)
}

// Streams hands out one seeded generator per stream name. A stream's
// sequence depends only on the scenario seed and its name, so adding a
// station or enabling loss does not shift the draws seen by anyone else.
//
// Streams is not safe for concurrent use; the event loop is single threaded.
type Streams struct {
	seed int64
	rngs map[string]*rand.Rand
}

// NewStreams creates the stream set of a run seeded with seed.
func NewStreams(seed int64) *Streams {
	return &Streams{seed: seed, rngs: make(map[string]*rand.Rand)}
}

// Seed returns the scenario seed.
func (s *Streams) Seed() int64 { return s.seed }

// Stream returns the generator for name, creating it on first use.
// Arrivals use the seed as is; every other stream uses seed ^ fnv1a(name).
func (s *Streams) Stream(name string) *rand.Rand {
	if r, ok := s.rngs[name]; ok {
		return r
	}
	seed := s.seed
	if name != StreamArrivals {
		seed ^= streamHash(name)
	}
	r := rand.New(rand.NewSource(seed))
	s.rngs[name] = r
	return r
}

func streamHash(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}
