package mdbox_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mdbox"
	"github.com/hupe1980/mdbox/internal/fs"
	"github.com/hupe1980/mdbox/testutil"
)

func cubeDims(nd int, lo, hi float64) []mdbox.Dimension {
	names := []string{"x", "y", "z", "t", "u", "v", "w", "a", "b"}
	dims := make([]mdbox.Dimension, nd)
	for i := range dims {
		dims[i] = mdbox.Dimension{Name: names[i], Min: lo, Max: hi}
	}
	return dims
}

func newWorkspace(t *testing.T, nd int, cfg mdbox.Config, opts ...mdbox.Option) *mdbox.Workspace {
	t.Helper()
	ws := mdbox.New(opts...)
	require.NoError(t, ws.Initialize(cubeDims(nd, -10, 10), cfg))
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func fivePerDimConfig() mdbox.Config {
	return mdbox.Config{SplitInto: 5, SplitThreshold: 500, MaxDepth: 5}
}

func TestEmptyWorkspaceIsUnsplit(t *testing.T) {
	ws := newWorkspace(t, 3, fivePerDimConfig())

	n, err := ws.AddEvents(nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, ws.SplitAllIfNeeded(context.Background(), nil))

	assert.Len(t, ws.GetBoxes(5, false), 1)
	st := ws.Stats()
	assert.Equal(t, int64(1), st.TotalNumMDBoxes)
	assert.Equal(t, int64(0), st.TotalNumMDGridBoxes)
}

func TestRootSplitsPastThreshold(t *testing.T) {
	ws := newWorkspace(t, 3, fivePerDimConfig())

	evs := testutil.NewRNG(42).UniformEvents(501, ws.Extents())
	n, err := ws.AddEvents(evs)
	require.NoError(t, err)
	require.Equal(t, 501, n)

	require.NoError(t, ws.SplitAllIfNeeded(context.Background(), nil))

	grid, ok := ws.Root().(*mdbox.MDGridBox)
	require.True(t, ok, "root should be a grid box")
	assert.Len(t, grid.Children(), 125)

	st := ws.Stats()
	assert.Equal(t, int64(1), st.TotalNumMDGridBoxes)
	assert.Equal(t, int64(125), st.TotalNumMDBoxes)
	assert.Equal(t, uint64(501), ws.NumEvents())
}

func TestInitialize_Validation(t *testing.T) {
	t.Run("twice", func(t *testing.T) {
		ws := newWorkspace(t, 2, mdbox.DefaultConfig())
		err := ws.Initialize(cubeDims(2, 0, 1), mdbox.DefaultConfig())
		assert.ErrorIs(t, err, mdbox.ErrInvalidArgument)
	})

	t.Run("degenerate extents", func(t *testing.T) {
		ws := mdbox.New()
		dims := cubeDims(2, 0, 1)
		dims[1].Max = dims[1].Min
		assert.ErrorIs(t, ws.Initialize(dims, mdbox.DefaultConfig()), mdbox.ErrInvalidArgument)
	})

	t.Run("no dimensions", func(t *testing.T) {
		assert.ErrorIs(t, mdbox.New().Initialize(nil, mdbox.DefaultConfig()), mdbox.ErrInvalidArgument)
	})

	for name, cfg := range map[string]mdbox.Config{
		"split into one":    {SplitInto: 1, SplitThreshold: 10, MaxDepth: 3},
		"zero threshold":    {SplitInto: 2, SplitThreshold: 0, MaxDepth: 3},
		"zero max depth":    {SplitInto: 2, SplitThreshold: 10, MaxDepth: 0},
		"unknown kind":      {SplitInto: 2, SplitThreshold: 10, MaxDepth: 3, EventKind: "medium"},
		"too many children": {SplitInto: 1 << 11, SplitThreshold: 10, MaxDepth: 3},
	} {
		t.Run(name, func(t *testing.T) {
			err := mdbox.New().Initialize(cubeDims(2, 0, 1), cfg)
			assert.ErrorIs(t, err, mdbox.ErrInvalidConfiguration)
		})
	}
}

func TestNotInitialized(t *testing.T) {
	ws := mdbox.New()

	_, err := ws.AddEvents([]mdbox.Event{mdbox.NewEvent(1, 1, 0)})
	assert.ErrorIs(t, err, mdbox.ErrNotInitialized)
	assert.ErrorIs(t, ws.SplitAllIfNeeded(context.Background(), nil), mdbox.ErrNotInitialized)
	assert.ErrorIs(t, ws.RefreshCache(context.Background()), mdbox.ErrNotInitialized)
	assert.True(t, mdbox.IsNoData(ws.GetSignalAtCoord([]float64{0}, mdbox.NoNormalization)))
	assert.Nil(t, ws.GetBoxes(3, false))
	assert.Nil(t, ws.CreateIterators(2))
	assert.Zero(t, ws.NumEvents())
}

func TestAddEvents_DimensionMismatch(t *testing.T) {
	ws := newWorkspace(t, 3, mdbox.DefaultConfig())

	evs := []mdbox.Event{
		mdbox.NewEvent(1, 1, 0, 0, 0),
		mdbox.NewEvent(1, 1, 0, 0),
	}
	n, err := ws.AddEvents(evs)
	assert.Zero(t, n)

	var dm *mdbox.ErrDimensionMismatch
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 3, dm.Expected)
	assert.Equal(t, 2, dm.Actual)
	assert.ErrorIs(t, err, mdbox.ErrInvalidConfiguration)
	assert.Zero(t, ws.NumEvents(), "nothing is added when any event mismatches")
}

func TestAddEventsReport_OutOfExtents(t *testing.T) {
	metrics := &mdbox.BasicMetricsCollector{}
	ws := newWorkspace(t, 2, mdbox.DefaultConfig(), mdbox.WithMetricsCollector(metrics))

	res, err := ws.AddEventsReport([]mdbox.Event{
		mdbox.NewEvent(1, 1, 0, 0),
		mdbox.NewEvent(1, 1, 10, -10),
		mdbox.NewEvent(1, 1, 10.5, 0),
		mdbox.NewEvent(1, 1, 0, -11),
	})
	require.NoError(t, err)
	assert.Equal(t, mdbox.AddResult{Added: 2, Dropped: 2}, res)
	assert.Equal(t, uint64(2), ws.NumEvents())

	ok, err := ws.AddEvent(mdbox.NewEvent(1, 1, 20, 20))
	require.NoError(t, err)
	assert.False(t, ok)

	st := metrics.GetStats()
	assert.Equal(t, int64(2), st.AddEventsCalls)
	assert.Equal(t, int64(2), st.EventsAdded)
	assert.Equal(t, int64(3), st.EventsDropped)
}

func TestEventConservation(t *testing.T) {
	for nd := 1; nd <= 4; nd++ {
		cfg := mdbox.Config{SplitInto: 3, SplitThreshold: 16, MaxDepth: 4}
		ws := newWorkspace(t, nd, cfg, mdbox.WithWorkers(4))
		ext := ws.Extents()

		rng := testutil.NewRNG(int64(nd))
		evs := rng.UniformEvents(2000, ext)
		evs = append(evs, testutil.BoundaryEvents(ext, cfg.SplitInto)...)
		evs = append(evs, rng.ClusteredEvents(500, ext, make([]float64, nd), 0.01)...)
		wantSignal, _ := testutil.SumSignal(evs)

		n, err := ws.AddEvents(evs)
		require.NoError(t, err)
		require.Equal(t, len(evs), n, "nd=%d", nd)
		require.NoError(t, ws.SplitAllIfNeeded(context.Background(), nil))

		var total uint64
		var signal float64
		for _, b := range ws.GetBoxes(cfg.MaxDepth, true) {
			total += b.NumEvents()
			signal += b.Signal()
			assert.LessOrEqual(t, b.Depth(), cfg.MaxDepth)
		}
		assert.Equal(t, uint64(len(evs)), total, "nd=%d", nd)
		assert.InDelta(t, wantSignal, signal, 1e-6)
		assert.InDelta(t, wantSignal, ws.Root().Signal(), 1e-6)

		require.NoError(t, ws.RefreshCache(context.Background()))
		assert.InDelta(t, wantSignal, ws.Root().Signal(), 1e-6)
		assert.Equal(t, uint64(len(evs)), ws.NumEvents())
	}
}

func TestDepthCeiling(t *testing.T) {
	cfg := mdbox.Config{SplitInto: 2, SplitThreshold: 1, MaxDepth: 3}
	ws := newWorkspace(t, 2, cfg)

	_, err := ws.AddEvents(testutil.PointEvents(50, 1.25, 1.25))
	require.NoError(t, err)
	require.NoError(t, ws.SplitAllIfNeeded(context.Background(), nil))

	st := ws.Stats()
	assert.Equal(t, int64(3), st.MaxDepthReached)
	for _, b := range ws.GetBoxes(100, false) {
		assert.LessOrEqual(t, b.Depth(), 3)
	}
	assert.Empty(t, ws.GetBoxes(-1, false))
}

func TestGetSignalAtCoord(t *testing.T) {
	ws := newWorkspace(t, 2, mdbox.Config{SplitInto: 2, SplitThreshold: 4, MaxDepth: 1})

	_, err := ws.AddEvents([]mdbox.Event{
		mdbox.NewEvent(2, 1, -5, -5),
		mdbox.NewEvent(4, 1, -6, -6),
		mdbox.NewEvent(1, 1, 5, 5),
		mdbox.NewEvent(1, 1, 6, 6),
		mdbox.NewEvent(1, 1, 7, 7),
	})
	require.NoError(t, err)
	require.NoError(t, ws.SplitAllIfNeeded(context.Background(), nil))

	assert.Equal(t, 6.0, ws.GetSignalAtCoord([]float64{-1, -1}, mdbox.NoNormalization))
	assert.Equal(t, 3.0, ws.GetSignalAtCoord([]float64{-1, -1}, mdbox.NumEventsNormalization))
	assert.InDelta(t, 6.0/100, ws.GetSignalAtCoord([]float64{-1, -1}, mdbox.VolumeNormalization), 1e-12)
	assert.Equal(t, 3.0, ws.GetSignalAtCoord([]float64{9, 9}, mdbox.NoNormalization))
	assert.Equal(t, 0.0, ws.GetSignalAtCoord([]float64{5, -5}, mdbox.NoNormalization))

	assert.True(t, mdbox.IsNoData(ws.GetSignalAtCoord([]float64{5, -5}, mdbox.NumEventsNormalization)))
	assert.True(t, mdbox.IsNoData(ws.GetSignalAtCoord([]float64{11, 0}, mdbox.NoNormalization)))
	assert.True(t, mdbox.IsNoData(ws.GetSignalAtCoord([]float64{0}, mdbox.NoNormalization)))
}

func probeSignals(ws *mdbox.Workspace, coords [][]float64) []float64 {
	out := make([]float64, len(coords))
	for i, c := range coords {
		out[i] = ws.GetSignalAtCoord(c, mdbox.NumEventsNormalization)
	}
	return out
}

func assertSameSignals(t *testing.T, want, got []float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		if mdbox.IsNoData(want[i]) {
			assert.True(t, mdbox.IsNoData(got[i]), "probe %d", i)
			continue
		}
		assert.Equal(t, want[i], got[i], "probe %d", i)
	}
}

func TestMasking_Idempotent(t *testing.T) {
	ws := newWorkspace(t, 3, mdbox.Config{SplitInto: 2, SplitThreshold: 20, MaxDepth: 4})
	rng := testutil.NewRNG(3)
	_, err := ws.AddEvents(rng.UniformEvents(3000, ws.Extents()))
	require.NoError(t, err)
	require.NoError(t, ws.SplitAllIfNeeded(context.Background(), nil))

	probes := make([][]float64, 200)
	for i := range probes {
		probes[i] = make([]float64, 3)
		rng.FillUniformRange(probes[i], -10, 10)
	}
	want := probeSignals(ws, probes)

	region := mdbox.Extents{{Min: -10, Max: 0}, {Min: -10, Max: 0}, {Min: -10, Max: 10}}
	require.NoError(t, ws.SetMDMasking(region))
	assert.True(t, mdbox.IsNoData(ws.GetSignalAtCoord([]float64{-5, -5, 0}, mdbox.NoNormalization)))
	assert.Len(t, ws.MaskRegions(), 1)

	require.NoError(t, ws.ClearMDMasking())
	assertSameSignals(t, want, probeSignals(ws, probes))
	assert.Empty(t, ws.MaskRegions())
}

func TestMasking_SurvivesSplit(t *testing.T) {
	ws := newWorkspace(t, 2, mdbox.Config{SplitInto: 2, SplitThreshold: 10, MaxDepth: 3})

	region := mdbox.Extents{{Min: -10, Max: -6}, {Min: -10, Max: -6}}
	require.NoError(t, ws.SetMDMasking(region))

	_, err := ws.AddEvents(testutil.NewRNG(5).UniformEvents(1000, ws.Extents()))
	require.NoError(t, err)
	require.NoError(t, ws.SplitAllIfNeeded(context.Background(), nil))

	assert.True(t, mdbox.IsNoData(ws.GetSignalAtCoord([]float64{-8, -8}, mdbox.NoNormalization)))
	assert.False(t, mdbox.IsNoData(ws.GetSignalAtCoord([]float64{8, 8}, mdbox.NoNormalization)))

	var masked int
	for _, b := range ws.GetBoxes(3, true) {
		if b.IsMasked() {
			masked++
			assert.True(t, b.Extents().Overlaps(region))
		}
	}
	assert.Positive(t, masked)
}

func TestSetMDMasking_Validation(t *testing.T) {
	ws := newWorkspace(t, 2, mdbox.DefaultConfig())

	var dm *mdbox.ErrDimensionMismatch
	assert.True(t, errors.As(ws.SetMDMasking(mdbox.Extents{{Min: 0, Max: 1}}), &dm))
	assert.ErrorIs(t, ws.SetMDMasking(mdbox.Extents{{Min: 1, Max: 0}, {Min: 0, Max: 1}}), mdbox.ErrInvalidArgument)
}

func TestCreateIterators(t *testing.T) {
	ws := newWorkspace(t, 2, mdbox.Config{SplitInto: 2, SplitThreshold: 10, MaxDepth: 4})
	_, err := ws.AddEvents(testutil.NewRNG(9).UniformEvents(2000, ws.Extents()))
	require.NoError(t, err)
	require.NoError(t, ws.SplitAllIfNeeded(context.Background(), nil))

	leaves := ws.GetBoxes(4, true)
	its := ws.CreateIterators(3)
	require.Len(t, its, 3)

	seen := map[uint64]bool{}
	var total uint64
	for _, it := range its {
		assert.InDelta(t, len(leaves)/3, it.Len(), 1)
		for it.Next() {
			id := it.Box().ID()
			assert.False(t, seen[id], "leaf %d visited twice", id)
			seen[id] = true
			total += it.NumEvents()
			assert.True(t, ws.Extents().Contains(it.Center()))
		}
		assert.False(t, it.Next())
		assert.Nil(t, it.Box())
	}
	assert.Len(t, seen, len(leaves))
	assert.Equal(t, ws.NumEvents(), total)

	it := its[0]
	it.Reset()
	require.True(t, it.Next())
	evs, err := it.Events(context.Background())
	require.NoError(t, err)
	assert.Len(t, evs, int(it.NumEvents()))

	assert.Len(t, ws.CreateIterators(len(leaves)+10), len(leaves))
	assert.Len(t, ws.CreateIterators(0), 1)
}

func TestWorkspace_Close(t *testing.T) {
	ws := mdbox.New(mdbox.WithFileBacking(t.TempDir()))
	require.NoError(t, ws.Initialize(cubeDims(2, 0, 1), mdbox.DefaultConfig()))

	require.NoError(t, ws.Close())
	require.NoError(t, ws.Close())

	_, err := ws.AddEvents(nil)
	assert.ErrorIs(t, err, mdbox.ErrClosed)
	assert.ErrorIs(t, ws.Initialize(cubeDims(2, 0, 1), mdbox.DefaultConfig()), mdbox.ErrClosed)
	assert.False(t, ws.IsFileBacked())
}

func TestAddEvents_Concurrent(t *testing.T) {
	ws := newWorkspace(t, 3, mdbox.Config{SplitInto: 2, SplitThreshold: 50, MaxDepth: 3})
	// Split once so concurrent adds route through a grid box.
	_, err := ws.AddEvents(testutil.NewRNG(1).UniformEvents(100, ws.Extents()))
	require.NoError(t, err)
	require.NoError(t, ws.SplitAllIfNeeded(context.Background(), nil))

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			evs := testutil.NewRNG(int64(100+g)).UniformEvents(500, ws.Extents())
			_, err := ws.AddEvents(evs)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(100+8*500), ws.NumEvents())
	require.NoError(t, ws.SplitAllIfNeeded(context.Background(), nil))
	assert.Equal(t, uint64(100+8*500), ws.NumEvents())
}

func TestFileBacking_PageOutAndLoad(t *testing.T) {
	dir := t.TempDir()
	metrics := &mdbox.BasicMetricsCollector{}
	ws := newWorkspace(t, 3, mdbox.Config{SplitInto: 2, SplitThreshold: 50, MaxDepth: 3, EventKind: "full"},
		mdbox.WithFileBacking(dir), mdbox.WithMetricsCollector(metrics))
	require.True(t, ws.IsFileBacked())

	evs := testutil.NewRNG(11).UniformFullEvents(2000, ws.Extents(), 4, 128)
	_, err := ws.AddEvents(evs)
	require.NoError(t, err)
	require.NoError(t, ws.SplitAllIfNeeded(context.Background(), nil))
	signal := ws.Root().Signal()

	released, err := ws.PageOut(context.Background(), 0)
	require.NoError(t, err)
	assert.Positive(t, released)

	st := ws.Stats()
	assert.True(t, st.FileBacked)
	assert.Positive(t, st.FileBackedLeaves)
	assert.Zero(t, st.InMemoryBytes)
	assert.Equal(t, uint64(len(evs)), st.PageFileUsed)
	assert.Equal(t, uint64(len(evs)), st.NumEvents)

	require.NoError(t, ws.RefreshCache(context.Background()))
	assert.InDelta(t, signal, ws.Root().Signal(), 1e-9)
	assert.Equal(t, uint64(len(evs)), ws.NumEvents())
	assert.Zero(t, ws.Stats().FileBackedLeaves)

	ms := metrics.GetStats()
	assert.Positive(t, ms.PageOutBytes)
	assert.Positive(t, ms.PageInBytes)

	lost, err := ws.ClearFileBacked(context.Background(), true)
	require.NoError(t, err)
	assert.Zero(t, lost)
	assert.False(t, ws.IsFileBacked())
	assert.Equal(t, uint64(len(evs)), ws.NumEvents())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "page file is removed")
}

func TestFileBacking_MemoryLimit(t *testing.T) {
	ws := newWorkspace(t, 2, mdbox.Config{SplitInto: 4, SplitThreshold: 100, MaxDepth: 2},
		mdbox.WithFileBacking(t.TempDir()), mdbox.WithMemoryLimit(64<<10))

	evs := testutil.NewRNG(12).UniformEvents(5000, ws.Extents())
	_, err := ws.AddEvents(evs)
	require.NoError(t, err)
	require.NoError(t, ws.SplitAllIfNeeded(context.Background(), nil))
	_, err = ws.AddEvents(testutil.NewRNG(13).UniformEvents(5000, ws.Extents()))
	require.NoError(t, err)

	st := ws.Stats()
	assert.LessOrEqual(t, st.InMemoryBytes, int64(64<<10))
	assert.Positive(t, st.FileBackedLeaves)
	assert.Equal(t, uint64(10000), ws.NumEvents())
}

func TestFileBacking_ClearDiscards(t *testing.T) {
	ws := newWorkspace(t, 2, mdbox.Config{SplitInto: 2, SplitThreshold: 100, MaxDepth: 2},
		mdbox.WithFileBacking(t.TempDir()))

	_, err := ws.AddEvents(testutil.NewRNG(14).UniformEvents(300, ws.Extents()))
	require.NoError(t, err)
	require.NoError(t, ws.SplitAllIfNeeded(context.Background(), nil))
	_, err = ws.PageOut(context.Background(), 0)
	require.NoError(t, err)

	lost, err := ws.ClearFileBacked(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), lost)
	assert.Zero(t, ws.NumEvents())
	assert.Zero(t, ws.Root().Signal())
}

func TestFileBacking_ReadFailureLeavesBoxIntact(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	ws := newWorkspace(t, 2, mdbox.Config{SplitInto: 2, SplitThreshold: 100, MaxDepth: 2},
		mdbox.WithFileBacking(t.TempDir()), mdbox.WithFileSystem(ffs))

	_, err := ws.AddEvents(testutil.NewRNG(15).UniformEvents(400, ws.Extents()))
	require.NoError(t, err)
	require.NoError(t, ws.SplitAllIfNeeded(context.Background(), nil))
	_, err = ws.PageOut(context.Background(), 0)
	require.NoError(t, err)
	backed := ws.Stats().FileBackedLeaves
	require.Positive(t, backed)

	ffs.AddRule(".mdpages", fs.Fault{FailReads: true, FailAfterBytes: -1})
	err = ws.RefreshCache(context.Background())
	assert.ErrorIs(t, err, mdbox.ErrPageIO)
	assert.ErrorIs(t, err, fs.ErrInjected)
	assert.Equal(t, uint64(400), ws.NumEvents())
	assert.Equal(t, backed, ws.Stats().FileBackedLeaves)

	ffs.ClearRules()
	require.NoError(t, ws.RefreshCache(context.Background()))
	assert.Zero(t, ws.Stats().FileBackedLeaves)
	assert.Equal(t, uint64(400), ws.NumEvents())
}

func TestFileBacking_CreateFailure(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule(".mdpages", fs.Fault{FailOnOpen: true, FailAfterBytes: -1})

	ws := mdbox.New(mdbox.WithFileBacking(filepath.Join(t.TempDir(), "pages")), mdbox.WithFileSystem(ffs))
	err := ws.Initialize(cubeDims(2, 0, 1), mdbox.DefaultConfig())
	assert.ErrorIs(t, err, mdbox.ErrPageIO)
	assert.ErrorIs(t, ws.RefreshCache(context.Background()), mdbox.ErrNotInitialized)
}
