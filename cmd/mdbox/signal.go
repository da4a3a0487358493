package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hupe1980/mdbox"
)

type signalFlags struct {
	norm string
}

var normalizations = map[string]mdbox.Normalization{
	mdbox.NoNormalization.String():        mdbox.NoNormalization,
	mdbox.VolumeNormalization.String():    mdbox.VolumeNormalization,
	mdbox.NumEventsNormalization.String(): mdbox.NumEventsNormalization,
}

func newSignalCmd(g *globalFlags) *cobra.Command {
	f := &signalFlags{}

	cmd := &cobra.Command{
		Use:   "signal [flags] NAME COORD...",
		Short: "Print the signal of the leaf box containing a point",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSignal(cmd, g, f, args[0], args[1:])
		},
	}
	cmd.Flags().StringVar(&f.norm, "norm", "none", "normalization: none, volume or num-events")
	// Coordinates may be negative; stop flag parsing at NAME.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func runSignal(cmd *cobra.Command, g *globalFlags, f *signalFlags, name string, args []string) error {
	ctx := cmd.Context()

	norm, ok := normalizations[f.norm]
	if !ok {
		return fmt.Errorf("unknown normalization %q", f.norm)
	}
	coords := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return fmt.Errorf("coordinate %d: %w", i, err)
		}
		coords[i] = v
	}

	logger, err := g.logger(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, g.store, g.cacheSize)
	if err != nil {
		return err
	}
	ws, err := mdbox.Open(ctx, store, name, mdbox.WithLogger(logger))
	if err != nil {
		return err
	}
	defer ws.Close()

	if len(coords) != ws.NumDims() {
		return &mdbox.ErrDimensionMismatch{Expected: ws.NumDims(), Actual: len(coords)}
	}

	s := ws.GetSignalAtCoord(coords, norm)
	if mdbox.IsNoData(s) {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "no data")
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%g\n", s)
	return err
}
