package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hupe1980/mdbox/internal/snapshot"
)

type inspectFlags struct {
	json bool
}

type inspectResult struct {
	Name         string               `json:"name"`
	Size         int64                `json:"size"`
	Version      uint16               `json:"version"`
	Codec        string               `json:"codec"`
	Compression  string               `json:"compression"`
	ManifestSize uint32               `json:"manifest_size"`
	BlockSize    uint32               `json:"block_size"`
	StoredSize   uint32               `json:"stored_size"`
	ID           string               `json:"id"`
	Created      time.Time            `json:"created"`
	Tree         snapshot.TreeConfig  `json:"tree"`
	Dimensions   []snapshot.Dimension `json:"dimensions"`
	MaskRegions  int                  `json:"mask_regions"`
	NumEvents    uint64               `json:"num_events"`
	Boxes        int                  `json:"boxes"`
	Leaves       int                  `json:"leaves"`
	MaxDepth     int                  `json:"max_depth"`
	BoxesByDepth []int                `json:"boxes_by_depth"`
}

func newInspectCmd(g *globalFlags) *cobra.Command {
	f := &inspectFlags{}

	cmd := &cobra.Command{
		Use:   "inspect NAME",
		Short: "Print the header and manifest summary of a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, g, f, args[0])
		},
	}
	cmd.Flags().BoolVar(&f.json, "json", false, "output as JSON")
	return cmd
}

func runInspect(cmd *cobra.Command, g *globalFlags, f *inspectFlags, name string) error {
	ctx := cmd.Context()

	store, err := openStore(ctx, g.store, g.cacheSize)
	if err != nil {
		return err
	}
	b, err := store.Open(ctx, name)
	if err != nil {
		return err
	}
	defer b.Close()

	h, m, err := snapshot.ReadHeader(ctx, b)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", name, err)
	}

	r := inspectResult{
		Name:         name,
		Size:         b.Size(),
		Version:      h.Version,
		Codec:        h.Codec,
		Compression:  h.Compression.String(),
		ManifestSize: h.ManifestSize,
		BlockSize:    h.BlockSize,
		StoredSize:   h.StoredSize,
		ID:           m.ID,
		Created:      time.Unix(m.CreatedUnix, 0).UTC(),
		Tree:         m.Tree,
		Dimensions:   m.Dimensions,
		MaskRegions:  len(m.MaskRegions),
		NumEvents:    m.NumEvents,
		Boxes:        len(m.Boxes),
		Leaves:       m.Leaves(),
		MaxDepth:     m.MaxDepth(),
		BoxesByDepth: make([]int, m.MaxDepth()+1),
	}
	for _, e := range m.Boxes {
		r.BoxesByDepth[e.Depth]++
	}

	out := cmd.OutOrStdout()
	if f.json {
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "name\t%s\n", r.Name)
	fmt.Fprintf(tw, "id\t%s\n", r.ID)
	fmt.Fprintf(tw, "created\t%s\n", r.Created.Format(time.RFC3339))
	fmt.Fprintf(tw, "format\tv%d, %s manifest, %s block\n", r.Version, r.Codec, r.Compression)
	fmt.Fprintf(tw, "size\t%d bytes (manifest %d, block %d, stored %d)\n", r.Size, r.ManifestSize, r.BlockSize, r.StoredSize)
	fmt.Fprintf(tw, "tree\tsplit into %d, threshold %d, max depth %d, %s events\n",
		r.Tree.SplitInto, r.Tree.SplitThreshold, r.Tree.MaxDepth, r.Tree.EventKind)
	for _, d := range r.Dimensions {
		fmt.Fprintf(tw, "dimension\t%s [%g, %g) %s\n", d.Name, d.Min, d.Max, d.Units)
	}
	fmt.Fprintf(tw, "events\t%d\n", r.NumEvents)
	fmt.Fprintf(tw, "boxes\t%d (%d leaves, depth %d)\n", r.Boxes, r.Leaves, r.MaxDepth)
	for depth, n := range r.BoxesByDepth {
		fmt.Fprintf(tw, "  depth %d\t%d\n", depth, n)
	}
	fmt.Fprintf(tw, "mask regions\t%d\n", r.MaskRegions)
	return tw.Flush()
}
