package mdbox

import (
	"github.com/hupe1980/mdbox/internal/box"
	"github.com/hupe1980/mdbox/internal/task"
)

// Event is a weighted point in N-dimensional space.
type Event = box.Event

// Extent is the closed range of one dimension.
type Extent = box.Extent

// Extents is one Extent per dimension.
type Extents = box.Extents

// Box is a node of the box tree, either *MDBox or *MDGridBox.
type Box = box.Box

// MDBox is a leaf box holding events.
type MDBox = box.MDBox

// MDGridBox is an interior box with a regular grid of children.
type MDGridBox = box.MDGridBox

// Normalization selects how GetSignalAtCoord scales a box signal.
type Normalization = box.Normalization

const (
	NoNormalization        = box.NoNormalization
	VolumeNormalization    = box.VolumeNormalization
	NumEventsNormalization = box.NumEventsNormalization
)

// MaxDims is the largest supported dimensionality.
const MaxDims = box.MaxDims

// Scheduler runs the independent work items of a split pass.
type Scheduler = task.Scheduler

// NoData is the sentinel returned by signal queries that have no answer.
// Test for it with IsNoData.
var NoData = box.NoData

// IsNoData reports whether v is the NoData sentinel.
func IsNoData(v float64) bool { return box.IsNoData(v) }

// NewEvent returns a lean event.
func NewEvent(signal, errorSquared float64, coords ...float64) Event {
	return box.NewEvent(signal, errorSquared, coords...)
}

// NewFullEvent returns an event carrying run index and detector ID.
func NewFullEvent(signal, errorSquared float64, runIndex uint16, detectorID int32, coords ...float64) Event {
	return box.NewFullEvent(signal, errorSquared, runIndex, detectorID, coords...)
}

// Sequential returns a Scheduler that runs every work item inline.
func Sequential() Scheduler { return task.Sequential{} }
