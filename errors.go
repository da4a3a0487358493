package mdbox

import (
	"errors"
	"fmt"

	"github.com/hupe1980/mdbox/internal/box"
	"github.com/hupe1980/mdbox/internal/snapshot"
)

var (
	// ErrInvalidConfiguration is returned for split policies that cannot make
	// progress and for events whose dimensionality does not match the workspace.
	ErrInvalidConfiguration = box.ErrInvalidConfiguration

	// ErrInvalidArgument is returned for bad call arguments, such as degenerate
	// extents or a second Initialize.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotInitialized is returned by operations that need a box tree before
	// Initialize or Open has provided one.
	ErrNotInitialized = errors.New("workspace not initialized")

	// ErrPageIO is returned when file-backed events cannot be read or written.
	ErrPageIO = box.ErrPageIO

	// ErrCorrupt is returned when a snapshot fails verification.
	ErrCorrupt = snapshot.ErrCorrupt

	// ErrIncompatibleFormat is returned for snapshots this version cannot read.
	ErrIncompatibleFormat = snapshot.ErrIncompatibleFormat

	// ErrClosed is returned by operations on a closed workspace.
	ErrClosed = errors.New("workspace closed")
)

// ErrDimensionMismatch indicates an event whose dimensionality differs from
// the workspace.
//
// It unwraps to ErrInvalidConfiguration.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return ErrInvalidConfiguration }
