package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/hupe1980/mdbox"
	"github.com/hupe1980/mdbox/internal/box"
)

type generateFlags struct {
	config string
	events int
	batch  int
	seed   uint64
}

func newGenerateCmd(g *globalFlags) *cobra.Command {
	f := &generateFlags{}

	cmd := &cobra.Command{
		Use:   "generate NAME",
		Short: "Fill a workspace with uniformly distributed events and save it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, g, f, args[0])
		},
	}
	cmd.Flags().StringVarP(&f.config, "config", "c", "", "workspace YAML config (required)")
	cmd.Flags().IntVarP(&f.events, "events", "n", 100000, "number of events")
	cmd.Flags().IntVar(&f.batch, "batch", 65536, "events per AddEvents call")
	cmd.Flags().Uint64Var(&f.seed, "seed", 1, "random seed")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runGenerate(cmd *cobra.Command, g *globalFlags, f *generateFlags, name string) error {
	ctx := cmd.Context()

	cfg, err := mdbox.LoadConfig(f.config)
	if err != nil {
		return err
	}
	logger, err := g.logger(cmd)
	if err != nil {
		return err
	}
	opts, err := cfg.Storage.Options()
	if err != nil {
		return err
	}
	opts = append(opts, mdbox.WithLogger(logger))

	store, err := openStore(ctx, g.store, g.cacheSize)
	if err != nil {
		return err
	}

	ws := mdbox.New(opts...)
	defer ws.Close()
	if err := ws.Initialize(cfg.Dimensions, cfg.Tree); err != nil {
		return err
	}

	kind, err := box.ParseEventKind(cfg.Tree.EventKind)
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewPCG(f.seed, f.seed^0x9e3779b97f4a7c15))
	batch := max(1, f.batch)
	coords := make([]float64, len(cfg.Dimensions))
	evs := make([]mdbox.Event, 0, batch)

	for left := f.events; left > 0; left -= len(evs) {
		evs = evs[:0]
		for range min(left, batch) {
			for d, dim := range cfg.Dimensions {
				coords[d] = dim.Min + rng.Float64()*(dim.Max-dim.Min)
			}
			if kind == box.EventKindFull {
				evs = append(evs, mdbox.NewFullEvent(1, 1, uint16(rng.IntN(4)), int32(rng.IntN(1024)), coords...))
			} else {
				evs = append(evs, mdbox.NewEvent(1, 1, coords...))
			}
		}
		if _, err := ws.AddEvents(evs); err != nil {
			return err
		}
		if err := ws.SplitAllIfNeeded(ctx, nil); err != nil {
			return err
		}
	}

	if err := ws.Save(ctx, store, name); err != nil {
		return err
	}

	st := ws.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "saved %s: %d events, %d boxes, %d grid boxes, depth %d\n",
		name, st.NumEvents, st.TotalNumMDBoxes, st.TotalNumMDGridBoxes, st.MaxDepthReached)
	return nil
}
