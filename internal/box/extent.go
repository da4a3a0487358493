package box

import "fmt"

// Extent is the closed interval [Min, Max] of one dimension.
type Extent struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Width returns Max-Min.
func (e Extent) Width() float64 { return e.Max - e.Min }

// Contains reports whether x lies in [Min, Max].
func (e Extent) Contains(x float64) bool { return x >= e.Min && x <= e.Max }

// Overlaps reports whether the intervals share more than a boundary point.
// A degenerate interval overlaps anything containing it.
func (e Extent) Overlaps(o Extent) bool {
	if e.Min == e.Max {
		return o.Contains(e.Min)
	}
	if o.Min == o.Max {
		return e.Contains(o.Min)
	}
	return e.Min < o.Max && o.Min < e.Max
}

// Within reports whether e lies inside o.
func (e Extent) Within(o Extent) bool { return e.Min >= o.Min && e.Max <= o.Max }

// Extents is one Extent per dimension.
type Extents []Extent

// Validate checks that every extent is finite-ordered and non-degenerate.
func (x Extents) Validate() error {
	if len(x) == 0 || len(x) > MaxDims {
		return fmt.Errorf("%w: %d dimensions (want 1..%d)", ErrInvalidConfiguration, len(x), MaxDims)
	}
	for d, e := range x {
		if !(e.Min < e.Max) {
			return fmt.Errorf("%w: dimension %d has degenerate extent [%g, %g]", ErrInvalidConfiguration, d, e.Min, e.Max)
		}
	}
	return nil
}

// Clone returns a copy.
func (x Extents) Clone() Extents {
	out := make(Extents, len(x))
	copy(out, x)
	return out
}

// Volume returns the product of the widths.
func (x Extents) Volume() float64 {
	v := 1.0
	for _, e := range x {
		v *= e.Width()
	}
	return v
}

// Center returns the midpoint.
func (x Extents) Center() []float64 {
	out := make([]float64, len(x))
	for d, e := range x {
		out[d] = e.Min + e.Width()/2
	}
	return out
}

// Contains reports whether coords lie inside every extent.
func (x Extents) Contains(coords []float64) bool {
	if len(coords) != len(x) {
		return false
	}
	for d, c := range coords {
		if !x[d].Contains(c) {
			return false
		}
	}
	return true
}

// ContainsEvent is Contains for an event's coordinates.
func (x Extents) ContainsEvent(ev Event) bool {
	if ev.NumDims() != len(x) {
		return false
	}
	for d := range x {
		if !x[d].Contains(ev.coords[d]) {
			return false
		}
	}
	return true
}

// Overlaps reports whether x and o overlap in every dimension.
func (x Extents) Overlaps(o Extents) bool {
	if len(x) != len(o) {
		return false
	}
	for d := range x {
		if !x[d].Overlaps(o[d]) {
			return false
		}
	}
	return true
}

// Within reports whether x lies inside o.
func (x Extents) Within(o Extents) bool {
	if len(x) != len(o) {
		return false
	}
	for d := range x {
		if !x[d].Within(o[d]) {
			return false
		}
	}
	return true
}

// Equal compares element-wise.
func (x Extents) Equal(o Extents) bool {
	if len(x) != len(o) {
		return false
	}
	for d := range x {
		if x[d] != o[d] {
			return false
		}
	}
	return true
}
