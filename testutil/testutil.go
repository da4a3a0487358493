package testutil

import (
	"math"
	"math/rand"
	"sync"

	"github.com/hupe1980/mdbox/internal/box"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// FillUniformRange fills dst with random values in range [minVal, maxVal).
func (r *RNG) FillUniformRange(dst []float64, minVal, maxVal float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	span := maxVal - minVal
	for i := range dst {
		dst[i] = minVal + r.rand.Float64()*span
	}
}

// UniformEvents generates lean events uniformly inside extents with signal and
// squared error drawn from [0.5, 1.5).
func (r *RNG) UniformEvents(num int, extents box.Extents) []box.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	evs := make([]box.Event, num)
	coords := make([]float64, len(extents))
	for i := range num {
		for d, e := range extents {
			coords[d] = e.Min + r.rand.Float64()*e.Width()
		}
		evs[i] = box.NewEvent(0.5+r.rand.Float64(), 0.5+r.rand.Float64(), coords...)
	}
	return evs
}

// UniformFullEvents is UniformEvents with run index and detector ID drawn
// from [0, runs) and [0, detectors).
func (r *RNG) UniformFullEvents(num int, extents box.Extents, runs, detectors int) []box.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	evs := make([]box.Event, num)
	coords := make([]float64, len(extents))
	for i := range num {
		for d, e := range extents {
			coords[d] = e.Min + r.rand.Float64()*e.Width()
		}
		evs[i] = box.NewFullEvent(0.5+r.rand.Float64(), 0.5+r.rand.Float64(),
			uint16(r.rand.Intn(runs)), int32(r.rand.Intn(detectors)), coords...)
	}
	return evs
}

// ClusteredEvents generates events around center with Gaussian spread,
// clamped into extents.
func (r *RNG) ClusteredEvents(num int, extents box.Extents, center []float64, spread float64) []box.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	evs := make([]box.Event, num)
	coords := make([]float64, len(extents))
	for i := range num {
		for d, e := range extents {
			c := center[d] + r.rand.NormFloat64()*spread
			coords[d] = math.Min(math.Max(c, e.Min), e.Max)
		}
		evs[i] = box.NewEvent(1, 1, coords...)
	}
	return evs
}

// BoundaryEvents returns one unit event at every corner of the grid that
// splitting extents into splitInto parts per dimension would create. These
// lie on box edges, including the outer maxima.
func BoundaryEvents(extents box.Extents, splitInto int) []box.Event {
	nd := len(extents)
	per := splitInto + 1

	total := 1
	for range nd {
		total *= per
	}

	evs := make([]box.Event, 0, total)
	idx := make([]int, nd)
	coords := make([]float64, nd)
	for range total {
		for d, e := range extents {
			if idx[d] == splitInto {
				coords[d] = e.Max
			} else {
				coords[d] = e.Min + float64(idx[d])*e.Width()/float64(splitInto)
			}
		}
		evs = append(evs, box.NewEvent(1, 1, coords...))

		for d := range nd {
			idx[d]++
			if idx[d] < per {
				break
			}
			idx[d] = 0
		}
	}
	return evs
}

// PointEvents returns n unit events at the same coordinates.
func PointEvents(n int, coords ...float64) []box.Event {
	evs := make([]box.Event, n)
	for i := range evs {
		evs[i] = box.NewEvent(1, 1, coords...)
	}
	return evs
}

// Cube returns nd extents of [lo, hi].
func Cube(nd int, lo, hi float64) box.Extents {
	ext := make(box.Extents, nd)
	for d := range ext {
		ext[d] = box.Extent{Min: lo, Max: hi}
	}
	return ext
}

// Zipf returns a Zipfian-distributed value in [0, n).
// s=1.0 gives standard Zipf, s=1.5 a heavy tail; used to skew spectrum occupancy.
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 1 {
		return 0
	}

	var hns float64
	for i := 1; i <= n; i++ {
		hns += 1.0 / math.Pow(float64(i), s)
	}

	u := r.rand.Float64() * hns
	var cumulative float64
	for k := 1; k <= n; k++ {
		cumulative += 1.0 / math.Pow(float64(k), s)
		if u <= cumulative {
			return k - 1
		}
	}
	return n - 1
}

// SumSignal returns the summed signal and squared error of evs.
func SumSignal(evs []box.Event) (signal, errSq float64) {
	for _, ev := range evs {
		signal += ev.Signal()
		errSq += ev.ErrorSquared()
	}
	return signal, errSq
}
