package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUniformEvents(t *testing.T) {
	rng := NewRNG(4711)
	ext := Cube(3, -10, 10)

	evs := rng.UniformEvents(100, ext)

	assert.Len(t, evs, 100)
	for _, ev := range evs {
		assert.Equal(t, 3, ev.NumDims())
		assert.True(t, ext.ContainsEvent(ev))
		assert.GreaterOrEqual(t, ev.Signal(), 0.5)
	}
}

func TestUniformEvents_Reproducible(t *testing.T) {
	a := NewRNG(1).UniformEvents(10, Cube(2, 0, 1))
	b := NewRNG(1).UniformEvents(10, Cube(2, 0, 1))
	assert.Equal(t, a, b)
}

func TestBoundaryEvents(t *testing.T) {
	ext := Cube(2, 0, 10)
	evs := BoundaryEvents(ext, 2)

	// (2+1)^2 grid corners.
	assert.Len(t, evs, 9)
	for _, ev := range evs {
		assert.True(t, ext.ContainsEvent(ev))
	}
	assert.Equal(t, []float64{10, 10}, evs[len(evs)-1].Coords())
}

func TestClusteredEvents_Clamped(t *testing.T) {
	rng := NewRNG(7)
	ext := Cube(2, 0, 1)
	evs := rng.ClusteredEvents(200, ext, []float64{0.9, 0.9}, 5)
	for _, ev := range evs {
		assert.True(t, ext.ContainsEvent(ev))
	}
}

func TestZipf(t *testing.T) {
	rng := NewRNG(4711)
	counts := make([]int, 10)
	for range 1000 {
		counts[rng.Zipf(10, 1.5)]++
	}
	assert.Greater(t, counts[0], counts[9])
}
