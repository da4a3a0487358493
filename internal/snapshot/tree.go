package snapshot

import (
	"context"
	"fmt"

	"github.com/hupe1980/mdbox/internal/box"
)

// Describe walks the tree depth-first and returns its box entries and the
// event records of all leaves. File-backed leaves are loaded.
func Describe(ctx context.Context, root box.Box) ([]BoxEntry, []byte, error) {
	if root == nil {
		return nil, nil, nil
	}
	ctrl := root.Controller()
	kind, nd := ctrl.EventKind(), ctrl.NumDims()

	var (
		entries []BoxEntry
		block   []byte
		records uint64
	)
	var walk func(b box.Box) error
	walk = func(b box.Box) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		e := BoxEntry{
			Depth:        b.Depth(),
			Extents:      b.Extents(),
			Masked:       b.IsMasked(),
			Signal:       b.Signal(),
			ErrorSquared: b.ErrorSquared(),
		}
		switch v := b.(type) {
		case *box.MDGridBox:
			children := v.Children()
			e.Grid = true
			e.Children = len(children)
			entries = append(entries, e)
			for _, c := range children {
				if err := walk(c); err != nil {
					return err
				}
			}
		case *box.MDBox:
			evs, err := v.Events(ctx)
			if err != nil {
				return err
			}
			e.Offset = records
			e.Count = uint64(len(evs))
			records += e.Count
			block = box.EncodeEvents(block, evs, kind, nd)
			entries = append(entries, e)
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, nil, err
	}
	return entries, block, nil
}

// Rebuild reconstructs the tree described by entries under ctrl. Every leaf
// takes its events from block. The controller counters reflect the rebuilt
// tree.
func Rebuild(ctrl *box.Controller, entries []BoxEntry, block []byte) (box.Box, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: manifest has no boxes", ErrCorrupt)
	}
	rs := uint64(ctrl.RecordSize())
	if uint64(len(block))%rs != 0 {
		return nil, fmt.Errorf("%w: event block of %d bytes is not a multiple of record size %d", ErrCorrupt, len(block), rs)
	}
	total := uint64(len(block)) / rs

	next := 0
	var build func(depth int) (box.Box, error)
	build = func(depth int) (box.Box, error) {
		if next >= len(entries) {
			return nil, fmt.Errorf("%w: manifest ends inside a grid box", ErrCorrupt)
		}
		e := entries[next]
		next++

		if e.Depth != depth {
			return nil, fmt.Errorf("%w: box %d has depth %d, want %d", ErrCorrupt, next-1, e.Depth, depth)
		}
		if len(e.Extents) != ctrl.NumDims() {
			return nil, fmt.Errorf("%w: box %d has %d extents, want %d", ErrCorrupt, next-1, len(e.Extents), ctrl.NumDims())
		}

		if !e.Grid {
			if e.Offset > total || e.Count > total-e.Offset {
				return nil, fmt.Errorf("%w: box %d references records [%d, %d) of %d", ErrCorrupt, next-1, e.Offset, e.Offset+e.Count, total)
			}
			evs, err := box.DecodeEvents(block[e.Offset*rs:(e.Offset+e.Count)*rs], ctrl.EventKind(), ctrl.NumDims())
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			leaf := box.NewLeaf(ctrl, e.Extents, depth)
			leaf.SetEvents(evs)
			leaf.SetMasked(e.Masked)
			return leaf, nil
		}

		if e.Children != ctrl.NumChildren() {
			return nil, fmt.Errorf("%w: grid box %d has %d children, want %d", ErrCorrupt, next-1, e.Children, ctrl.NumChildren())
		}
		children := make([]box.Box, e.Children)
		for i := range children {
			c, err := build(depth + 1)
			if err != nil {
				return nil, err
			}
			children[i] = c
		}
		g, err := box.NewGrid(ctrl, e.Extents, depth, children)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return g, nil
	}

	root, err := build(0)
	if err != nil {
		return nil, err
	}
	if next != len(entries) {
		return nil, fmt.Errorf("%w: %d boxes after the root subtree", ErrCorrupt, len(entries)-next)
	}
	return root, nil
}
