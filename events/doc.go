// Package events implements EventWorkspace, a matrix of per-spectrum event
// lists that are histogrammed on demand against shared bin edges.
//
// Computed histograms are kept in a per-worker most-recently-used cache keyed
// by a handle the workspace issues to every EventList. Mutating a list through
// the workspace drops its cached histograms; replacing the bin edges drops all
// of them.
//
//	x := cow.FromSlice([]float64{0, 1000, 2000, 5000, 10000})
//	ws, _ := events.New(2, x)
//	defer ws.Close()
//
//	_ = ws.AddEvents(0, []events.TofEvent{events.NewTofEvent(1500, 0)})
//	y := ws.ReadY(0) // computed
//	y = ws.ReadY(0)  // served from the cache
//
// Workers that process spectra concurrently use their own cache slot:
//
//	err := ws.ForEachSpectrum(ctx, 8, func(w *events.Worker, i int) error {
//		y := w.ReadY(i)
//		...
//	})
package events
