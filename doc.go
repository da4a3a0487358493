// Package mdbox provides an in-memory, optionally file-backed, multidimensional
// event workspace for neutron-scattering style data.
//
// A Workspace holds weighted events in an adaptive box tree. The root box
// covers the declared extents of every dimension. When a leaf accumulates more
// events than the split threshold it is replaced by a grid box that divides its
// extents into SplitInto equal parts per dimension, up to MaxDepth.
//
// # Quick Start
//
//	ws := mdbox.New()
//	defer ws.Close()
//
//	err := ws.Initialize([]mdbox.Dimension{
//		{Name: "Qx", Units: "1/A", Min: -5, Max: 5},
//		{Name: "Qy", Units: "1/A", Min: -5, Max: 5},
//		{Name: "DeltaE", Units: "meV", Min: 0, Max: 50},
//	}, mdbox.DefaultConfig())
//
//	ws.AddEvents(events)
//	ws.SplitAllIfNeeded(ctx, nil)
//
//	s := ws.GetSignalAtCoord([]float64{0.1, 0.2, 12}, mdbox.VolumeNormalization)
//
// # File Backing
//
// With WithFileBacking the workspace keeps a page file of event records.
// Least recently used leaves are written out once the in-memory event data
// exceeds WithMemoryLimit and are loaded back transparently on access:
//
//	ws := mdbox.New(
//		mdbox.WithFileBacking("/scratch"),
//		mdbox.WithMemoryLimit(512<<20),
//	)
//
// # Snapshots
//
// Save writes the whole tree to any blobstore.BlobStore (local directory,
// memory, S3, MinIO) and Open restores it:
//
//	store := blobstore.NewLocalStore("./runs")
//	_ = ws.Save(ctx, store, "run-42.mdbx")
//	ws2, _ := mdbox.Open(ctx, store, "run-42.mdbx")
//
// # Histogram Workspaces
//
// Package events provides the companion EventWorkspace: per-spectrum event
// lists histogrammed on demand against shared bin edges, with a per-worker
// cache of recently computed histograms.
package mdbox
