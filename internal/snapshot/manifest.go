package snapshot

import "github.com/hupe1980/mdbox/internal/box"

// Manifest describes a saved workspace.
type Manifest struct {
	ID          string        `json:"id"`
	CreatedUnix int64         `json:"created_unix"`
	Tree        TreeConfig    `json:"tree"`
	Dimensions  []Dimension   `json:"dimensions"`
	MaskRegions []box.Extents `json:"mask_regions,omitempty"`
	NumEvents   uint64        `json:"num_events"`
	Boxes       []BoxEntry    `json:"boxes"`
}

// TreeConfig mirrors box.Config with the event kind spelled out.
type TreeConfig struct {
	NumDims        int    `json:"num_dims"`
	SplitInto      int    `json:"split_into"`
	SplitThreshold int    `json:"split_threshold"`
	MaxDepth       int    `json:"max_depth"`
	EventKind      string `json:"event_kind"`
}

// TreeConfigOf converts a box.Config.
func TreeConfigOf(c box.Config) TreeConfig {
	return TreeConfig{
		NumDims:        c.NumDims,
		SplitInto:      c.SplitInto,
		SplitThreshold: c.SplitThreshold,
		MaxDepth:       c.MaxDepth,
		EventKind:      c.EventKind.String(),
	}
}

// BoxConfig converts back to a box.Config.
func (t TreeConfig) BoxConfig() (box.Config, error) {
	kind, err := box.ParseEventKind(t.EventKind)
	if err != nil {
		return box.Config{}, err
	}
	return box.Config{
		NumDims:        t.NumDims,
		SplitInto:      t.SplitInto,
		SplitThreshold: t.SplitThreshold,
		MaxDepth:       t.MaxDepth,
		EventKind:      kind,
	}, nil
}

// Dimension names one workspace axis.
type Dimension struct {
	Name  string  `json:"name"`
	Units string  `json:"units,omitempty"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// BoxEntry is one box in depth-first pre-order.
type BoxEntry struct {
	Grid     bool        `json:"grid,omitempty"`
	Depth    int         `json:"depth"`
	Extents  box.Extents `json:"extents"`
	Masked   bool        `json:"masked,omitempty"`
	Children int         `json:"children,omitempty"`

	// Leaves only: records [Offset, Offset+Count) of the event block.
	Offset uint64 `json:"offset,omitempty"`
	Count  uint64 `json:"count,omitempty"`

	Signal       float64 `json:"signal"`
	ErrorSquared float64 `json:"error_squared"`
}

// Leaves returns the number of leaf entries.
func (m *Manifest) Leaves() int {
	n := 0
	for i := range m.Boxes {
		if !m.Boxes[i].Grid {
			n++
		}
	}
	return n
}

// MaxDepth returns the deepest box depth.
func (m *Manifest) MaxDepth() int {
	d := 0
	for i := range m.Boxes {
		d = max(d, m.Boxes[i].Depth)
	}
	return d
}
