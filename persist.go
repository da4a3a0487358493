package mdbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/mdbox/blobstore"
	"github.com/hupe1980/mdbox/internal/box"
	"github.com/hupe1980/mdbox/internal/snapshot"
)

// Save writes the whole workspace to store under name as one snapshot blob,
// replacing any existing blob. File-backed leaves are loaded to be written.
func (w *Workspace) Save(ctx context.Context, store blobstore.BlobStore, name string) (err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	size := 0
	defer func() { w.logger.LogSave(ctx, name, size, err) }()

	if err := w.readyLocked(); err != nil {
		return err
	}

	before := w.pageStats()
	entries, block, err := snapshot.Describe(ctx, w.root)
	w.recordPaging(ctx, before, err)
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}

	m := &snapshot.Manifest{
		ID:          w.id.String(),
		CreatedUnix: time.Now().Unix(),
		Tree:        snapshot.TreeConfigOf(w.ctrl.Config()),
		Dimensions:  make([]snapshot.Dimension, len(w.dims)),
		MaskRegions: w.masks,
		NumEvents:   w.root.NumEvents(),
		Boxes:       entries,
	}
	for i, d := range w.dims {
		m.Dimensions[i] = snapshot.Dimension{Name: d.Name, Units: d.Units, Min: d.Min, Max: d.Max}
	}

	data, err := snapshot.Encode(w.opts.codec, w.opts.compression, m, block)
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	if err := store.Put(ctx, name, data); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	size = len(data)
	return nil
}

// Open loads the snapshot name from store into a new workspace. opts apply as
// for New; codec and compression options only affect later saves. The
// workspace keeps the saved ID.
//
// Open fails with ErrCorrupt when the blob does not verify and with
// ErrIncompatibleFormat when it was written by an unsupported version.
func Open(ctx context.Context, store blobstore.BlobStore, name string, opts ...Option) (_ *Workspace, err error) {
	w := New(opts...)
	defer func() {
		var events uint64
		if err == nil {
			events = w.NumEvents()
		}
		w.logger.LogLoad(ctx, name, events, err)
	}()

	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer b.Close()

	data, err := blobstore.ReadAll(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	snap, err := snapshot.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	if err := w.restore(ctx, snap); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return w, nil
}

func (w *Workspace) restore(ctx context.Context, snap *snapshot.Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	m := snap.Manifest
	bc, err := m.Tree.BoxConfig()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if bc.NumDims != len(m.Dimensions) {
		return fmt.Errorf("%w: tree has %d dimensions, manifest lists %d", ErrCorrupt, bc.NumDims, len(m.Dimensions))
	}

	dims := make([]Dimension, len(m.Dimensions))
	for i, d := range m.Dimensions {
		dims[i] = Dimension{Name: d.Name, Units: d.Units, Min: d.Min, Max: d.Max}
	}
	if err := validateDimensions(dims); err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if err := w.setup(dims, bc); err != nil {
		return err
	}

	root, err := snapshot.Rebuild(w.ctrl, m.Boxes, snap.Block)
	if err != nil {
		return err
	}
	if !root.Extents().Equal(w.extents) {
		return fmt.Errorf("%w: root extents %v differ from dimensions %v", ErrCorrupt, root.Extents(), w.extents)
	}
	if root.NumEvents() != m.NumEvents {
		return fmt.Errorf("%w: tree holds %d events, manifest records %d", ErrCorrupt, root.NumEvents(), m.NumEvents)
	}
	for _, r := range m.MaskRegions {
		if len(r) != bc.NumDims {
			return fmt.Errorf("%w: mask region with %d dimensions", ErrCorrupt, len(r))
		}
	}

	if id, err := uuid.Parse(m.ID); err == nil {
		w.id = id
		w.logger = w.opts.logger.WithWorkspace(id.String()).WithDimensions(bc.NumDims)
	}
	w.root = root
	w.masks = append([]box.Extents(nil), m.MaskRegions...)

	w.logger.DebugContext(ctx, "workspace restored",
		"boxes", len(m.Boxes),
		"leaves", m.Leaves(),
		"max_depth", m.MaxDepth(),
		"codec", snap.Header.Codec,
		"compression", snap.Header.Compression.String(),
	)
	return nil
}
