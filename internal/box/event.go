package box

import "fmt"

// MaxDims is the largest supported dimensionality.
const MaxDims = 9

// EventKind selects the per-event payload stored by a workspace.
type EventKind uint8

const (
	// EventKindLean events carry signal, error and coordinates.
	EventKindLean EventKind = iota
	// EventKindFull events additionally carry run index and detector ID.
	EventKindFull
)

func (k EventKind) String() string {
	switch k {
	case EventKindLean:
		return "lean"
	case EventKindFull:
		return "full"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// ParseEventKind parses the String form of an EventKind.
func ParseEventKind(s string) (EventKind, error) {
	switch s {
	case "", "lean":
		return EventKindLean, nil
	case "full":
		return EventKindFull, nil
	default:
		return 0, fmt.Errorf("%w: unknown event kind %q", ErrInvalidConfiguration, s)
	}
}

// Event is a weighted point in N-dimensional space. Events are values.
type Event struct {
	coords       [MaxDims]float64
	signal       float64
	errorSquared float64
	detectorID   int32
	runIndex     uint16
	nd           uint8
}

// NewEvent creates a lean event. It panics if more than MaxDims coordinates are given.
func NewEvent(signal, errorSquared float64, coords ...float64) Event {
	if len(coords) > MaxDims {
		panic(fmt.Sprintf("box: %d coordinates exceed MaxDims", len(coords)))
	}
	ev := Event{signal: signal, errorSquared: errorSquared, nd: uint8(len(coords))}
	copy(ev.coords[:], coords)
	return ev
}

// NewFullEvent creates an event with run index and detector ID.
func NewFullEvent(signal, errorSquared float64, runIndex uint16, detectorID int32, coords ...float64) Event {
	ev := NewEvent(signal, errorSquared, coords...)
	ev.runIndex = runIndex
	ev.detectorID = detectorID
	return ev
}

// NumDims returns the number of coordinates.
func (e Event) NumDims() int { return int(e.nd) }

// Coord returns coordinate d.
func (e Event) Coord(d int) float64 { return e.coords[d] }

// Coords returns a copy of the coordinates.
func (e Event) Coords() []float64 {
	out := make([]float64, e.nd)
	copy(out, e.coords[:e.nd])
	return out
}

func (e Event) Signal() float64       { return e.signal }
func (e Event) ErrorSquared() float64 { return e.errorSquared }
func (e Event) RunIndex() uint16      { return e.runIndex }
func (e Event) DetectorID() int32     { return e.detectorID }

func (e Event) String() string {
	return fmt.Sprintf("Event{signal=%g err2=%g coords=%v}", e.signal, e.errorSquared, e.coords[:e.nd])
}
