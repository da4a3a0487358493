package snapshot_test

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mdbox/blobstore"
	"github.com/hupe1980/mdbox/codec"
	"github.com/hupe1980/mdbox/internal/box"
	"github.com/hupe1980/mdbox/internal/snapshot"
	"github.com/hupe1980/mdbox/testutil"
)

var testCfg = box.Config{NumDims: 3, SplitInto: 2, SplitThreshold: 20, MaxDepth: 4, EventKind: box.EventKindFull}

func buildTree(t *testing.T) (*box.Controller, box.Box) {
	t.Helper()
	ctrl, err := box.NewController(testCfg)
	require.NoError(t, err)

	ext := testutil.Cube(3, -5, 5)
	root := box.Box(box.NewLeaf(ctrl, ext, 0))
	rng := testutil.NewRNG(7)
	require.Equal(t, 500, root.AddEvents(rng.UniformFullEvents(500, ext, 3, 64)))
	require.Equal(t, 200, root.AddEvents(rng.ClusteredEvents(200, ext, []float64{1, 1, 1}, 0.2)))

	root, err = box.SplitAllIfNeeded(context.Background(), root, nil)
	require.NoError(t, err)
	box.SetMasking(root, box.Extents{{Min: -5, Max: 0}, {Min: -5, Max: 0}, {Min: -5, Max: 0}})
	return ctrl, root
}

func manifestFor(t *testing.T, root box.Box) (*snapshot.Manifest, []byte) {
	t.Helper()
	entries, block, err := snapshot.Describe(context.Background(), root)
	require.NoError(t, err)
	return &snapshot.Manifest{
		ID:        "ws-1",
		Tree:      snapshot.TreeConfigOf(testCfg),
		NumEvents: root.NumEvents(),
		Dimensions: []snapshot.Dimension{
			{Name: "Qx", Units: "1/A", Min: -5, Max: 5},
			{Name: "Qy", Units: "1/A", Min: -5, Max: 5},
			{Name: "Qz", Units: "1/A", Min: -5, Max: 5},
		},
		Boxes: entries,
	}, block
}

func TestRoundTrip(t *testing.T) {
	_, root := buildTree(t)
	m, block := manifestFor(t, root)
	require.Greater(t, len(m.Boxes), 1)

	comps := []snapshot.Compression{snapshot.CompressionNone, snapshot.CompressionLZ4, snapshot.CompressionZstd}
	for _, name := range codec.Names() {
		c, _ := codec.ByName(name)
		for _, comp := range comps {
			t.Run(name+"/"+comp.String(), func(t *testing.T) {
				data, err := snapshot.Encode(c, comp, m, block)
				require.NoError(t, err)

				snap, err := snapshot.Decode(data)
				require.NoError(t, err)
				assert.Equal(t, name, snap.Header.Codec)
				assert.Equal(t, comp, snap.Header.Compression)
				assert.Equal(t, block, snap.Block)
				if diff := cmp.Diff(m, snap.Manifest); diff != "" {
					t.Fatalf("manifest mismatch (-want +got):\n%s", diff)
				}

				cfg, err := snap.Manifest.Tree.BoxConfig()
				require.NoError(t, err)
				ctrl, err := box.NewController(cfg)
				require.NoError(t, err)
				rebuilt, err := snapshot.Rebuild(ctrl, snap.Manifest.Boxes, snap.Block)
				require.NoError(t, err)

				assert.Equal(t, root.NumEvents(), rebuilt.NumEvents())
				assert.InDelta(t, root.Signal(), rebuilt.Signal(), 1e-9)
				assert.Equal(t, len(box.GetBoxes(root, 10, false)), len(box.GetBoxes(rebuilt, 10, false)))

				again, block2, err := snapshot.Describe(context.Background(), rebuilt)
				require.NoError(t, err)
				assert.Equal(t, block, block2)
				if diff := cmp.Diff(m.Boxes, again, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
					t.Fatalf("boxes mismatch (-want +got):\n%s", diff)
				}

				st := ctrl.Stats()
				assert.Equal(t, int64(m.Leaves()), st.TotalNumMDBoxes)
				assert.Equal(t, int64(len(m.Boxes)-m.Leaves()), st.TotalNumMDGridBoxes)
			})
		}
	}
}

func TestEncode_IncompressibleBlockStoredRaw(t *testing.T) {
	block := make([]byte, 4096)
	_, _ = rand.Read(block)

	data, err := snapshot.Encode(nil, snapshot.CompressionZstd, &snapshot.Manifest{}, block)
	require.NoError(t, err)
	snap, err := snapshot.Decode(data)
	require.NoError(t, err)
	assert.Zero(t, snap.Header.StoredSize)
	assert.Equal(t, uint32(len(block)), snap.Header.BlockSize)
	assert.Equal(t, block, snap.Block)
	assert.Equal(t, codec.Default.Name(), snap.Header.Codec)
}

func TestEncode_CompressibleBlock(t *testing.T) {
	block := make([]byte, 1<<16)
	for _, comp := range []snapshot.Compression{snapshot.CompressionLZ4, snapshot.CompressionZstd} {
		data, err := snapshot.Encode(codec.JSON{}, comp, &snapshot.Manifest{}, block)
		require.NoError(t, err)
		assert.Less(t, len(data), len(block)/2)

		snap, err := snapshot.Decode(data)
		require.NoError(t, err)
		assert.NotZero(t, snap.Header.StoredSize)
		assert.Equal(t, block, snap.Block)
	}
}

func TestDecode_Errors(t *testing.T) {
	_, root := buildTree(t)
	m, block := manifestFor(t, root)
	good, err := snapshot.Encode(codec.JSON{}, snapshot.CompressionLZ4, m, block)
	require.NoError(t, err)

	mutate := func(f func([]byte) []byte) []byte {
		cp := append([]byte(nil), good...)
		return f(cp)
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, snapshot.ErrIncompatibleFormat},
		{"bad magic", mutate(func(b []byte) []byte { b[0] = 'X'; return b }), snapshot.ErrIncompatibleFormat},
		{"future version", mutate(func(b []byte) []byte { b[4] = 99; return b }), snapshot.ErrIncompatibleFormat},
		{"bit flip in block", mutate(func(b []byte) []byte { b[len(b)-20] ^= 0x01; return b }), snapshot.ErrCorrupt},
		{"bit flip in manifest", mutate(func(b []byte) []byte { b[40] ^= 0x01; return b }), snapshot.ErrCorrupt},
		{"truncated", good[:len(good)-7], snapshot.ErrCorrupt},
		{"bad checksum", mutate(func(b []byte) []byte { b[len(b)-1] ^= 0xFF; return b }), snapshot.ErrCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := snapshot.Decode(tt.data)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

type upperJSON struct{ codec.JSON }

func (upperJSON) Name() string { return "json-v9" }

func TestDecode_UnknownCodec(t *testing.T) {
	data, err := snapshot.Encode(upperJSON{}, snapshot.CompressionNone, &snapshot.Manifest{ID: "x"}, nil)
	require.NoError(t, err)
	_, err = snapshot.Decode(data)
	assert.ErrorIs(t, err, snapshot.ErrIncompatibleFormat)
}

func TestReadHeader(t *testing.T) {
	ctx := context.Background()
	_, root := buildTree(t)
	m, block := manifestFor(t, root)
	data, err := snapshot.Encode(codec.GoJSON{}, snapshot.CompressionZstd, m, block)
	require.NoError(t, err)

	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "ws.mdbx", data))
	b, err := store.Open(ctx, "ws.mdbx")
	require.NoError(t, err)
	defer b.Close()

	h, got, err := snapshot.ReadHeader(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, snapshot.Version, h.Version)
	assert.Equal(t, "go-json", h.Codec)
	assert.Equal(t, uint32(len(block)), h.BlockSize)
	assert.Equal(t, m.NumEvents, got.NumEvents)
	assert.Equal(t, len(m.Boxes), len(got.Boxes))
	assert.Equal(t, m.MaxDepth(), got.MaxDepth())
	assert.Equal(t, m.Dimensions, got.Dimensions)
}

func TestRebuild_Errors(t *testing.T) {
	_, root := buildTree(t)
	m, block := manifestFor(t, root)

	newCtrl := func() *box.Controller {
		ctrl, err := box.NewController(testCfg)
		require.NoError(t, err)
		return ctrl
	}

	_, err := snapshot.Rebuild(newCtrl(), nil, nil)
	assert.ErrorIs(t, err, snapshot.ErrCorrupt)

	_, err = snapshot.Rebuild(newCtrl(), m.Boxes, block[:len(block)-1])
	assert.ErrorIs(t, err, snapshot.ErrCorrupt)

	_, err = snapshot.Rebuild(newCtrl(), m.Boxes[:len(m.Boxes)-1], block)
	assert.ErrorIs(t, err, snapshot.ErrCorrupt)

	bad := append([]snapshot.BoxEntry(nil), m.Boxes...)
	bad[0].Children = 3
	_, err = snapshot.Rebuild(newCtrl(), bad, block)
	assert.ErrorIs(t, err, snapshot.ErrCorrupt)

	over := append([]snapshot.BoxEntry(nil), m.Boxes...)
	last := len(over) - 1
	over[last].Count = uint64(len(block))
	_, err = snapshot.Rebuild(newCtrl(), over, block)
	assert.ErrorIs(t, err, snapshot.ErrCorrupt)

	extra := append(append([]snapshot.BoxEntry(nil), m.Boxes...), m.Boxes[len(m.Boxes)-1])
	_, err = snapshot.Rebuild(newCtrl(), extra, block)
	assert.ErrorIs(t, err, snapshot.ErrCorrupt)
}

func TestCompression_Parse(t *testing.T) {
	for _, c := range []snapshot.Compression{snapshot.CompressionNone, snapshot.CompressionLZ4, snapshot.CompressionZstd} {
		got, err := snapshot.ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := snapshot.ParseCompression("brotli")
	assert.ErrorIs(t, err, snapshot.ErrIncompatibleFormat)
}
