package box

import "errors"

var (
	// ErrInvalidConfiguration is returned for invalid split policies, extents or
	// event dimensionality.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrPageIO is returned when a file-backed box cannot be read from or written
	// to its page file.
	ErrPageIO = errors.New("page file I/O failed")
)
