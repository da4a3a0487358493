package mmap

// Region is a bounded view into a Mapping. It does not own the memory.
type Region struct {
	parent *Mapping
	offset int
	size   int
}

// Region returns the view [offset, offset+size).
func (m *Mapping) Region(offset, size int) (*Region, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if offset < 0 || size < 0 || offset+size > m.size {
		return nil, ErrOutOfBounds
	}
	return &Region{parent: m, offset: offset, size: size}, nil
}

// Len returns the region length in bytes.
func (r *Region) Len() int { return r.size }

// Bytes returns the region's bytes, or nil once the parent is closed.
func (r *Region) Bytes() []byte {
	if r.parent.closed.Load() {
		return nil
	}
	return r.parent.data[r.offset : r.offset+r.size]
}

// Advise hints the kernel about how this region will be read.
func (r *Region) Advise(pattern AccessPattern) error {
	if r.parent.closed.Load() {
		return ErrClosed
	}
	if r.size == 0 {
		return nil
	}
	return osAdvise(r.parent.data[r.offset:r.offset+r.size], pattern)
}
