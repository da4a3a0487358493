// Package testutil provides testing utilities for mdbox.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, thread-safe RNG and generators for events in
// N-dimensional extents.
//
// # Random Events
//
//	rng := testutil.NewRNG(seed)
//	evs := rng.UniformEvents(1000, testutil.Cube(3, -10, 10))
//
// # Boundary Events
//
// BoundaryEvents places events on every child edge a split would create,
// including the outer maxima, which exercises the clamping of child routing.
package testutil
