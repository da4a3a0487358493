package box

import "context"

// ClearFileBacked detaches every leaf from the page file. With loadData all
// disk events are loaded into memory; without it they are discarded, the
// aggregates are recomputed and the number of discarded events is returned.
// Paging is suspended on return; the caller releases the page file.
func ClearFileBacked(ctx context.Context, root Box, loadData bool) (uint64, error) {
	if root == nil {
		return 0, nil
	}
	ctrl := root.Controller()
	ctrl.SuspendPaging()
	if buf := ctrl.DiskBuffer(); buf != nil {
		buf.Clear()
	}

	var lost uint64
	for _, leaf := range Leaves(root) {
		if err := ctx.Err(); err != nil {
			return lost, err
		}
		n, err := leaf.ClearFileBacked(ctx, loadData)
		if err != nil {
			return lost, err
		}
		lost += n
	}

	if lost > 0 {
		if err := root.RefreshCache(ctx); err != nil {
			return lost, err
		}
		ctrl.Logger().Warn("discarded file-backed events", "events", lost)
	}
	return lost, nil
}

// CountFileBacked returns the number of leaves with unloaded disk events.
func CountFileBacked(root Box) int {
	n := 0
	for _, leaf := range Leaves(root) {
		if leaf.IsFileBacked() {
			n++
		}
	}
	return n
}
