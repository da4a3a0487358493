package box

import (
	"context"

	"github.com/hupe1980/mdbox/internal/task"
)

// SplitAllIfNeeded splits every leaf holding more than the split threshold,
// recursively, and returns the (possibly replaced) root. Children of a grid
// box are split as independent scheduler tasks. Traversing the tree while
// this runs is not supported.
func SplitAllIfNeeded(ctx context.Context, root Box, sched task.Scheduler) (Box, error) {
	if sched == nil {
		sched = task.Sequential{}
	}
	if err := ctx.Err(); err != nil {
		return root, err
	}

	if leaf, ok := root.(*MDBox); ok {
		if !leaf.ctrl.WillSplit(leaf.NumEvents(), leaf.depth) {
			return root, nil
		}
		g, err := leaf.split(ctx)
		if err != nil {
			return root, err
		}
		root = g
	}

	grid, ok := root.(*MDGridBox)
	if !ok {
		return root, nil
	}

	grp := sched.Start(ctx)
	grid.splitChildren(grp)
	return root, grp.Wait()
}
