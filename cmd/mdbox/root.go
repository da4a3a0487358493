package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hupe1980/mdbox"
)

type globalFlags struct {
	store     string
	cacheSize int64
	logLevel  string
	logJSON   bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "mdbox",
		Short:         "Build and query multidimensional event workspaces",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.store, "store", ".", "snapshot store: a directory, s3://bucket/prefix or minio://host/bucket/prefix")
	pf.Int64Var(&g.cacheSize, "cache-size", 64<<20, "in-memory block cache for remote stores in bytes, 0 disables it")
	pf.StringVar(&g.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	pf.BoolVar(&g.logJSON, "log-json", false, "log as JSON")

	root.AddCommand(
		newGenerateCmd(g),
		newInspectCmd(g),
		newSignalCmd(g),
	)
	return root
}

func (g *globalFlags) logger(cmd *cobra.Command) (*mdbox.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.logLevel)); err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if g.logJSON {
		return mdbox.NewLogger(slog.NewJSONHandler(cmd.ErrOrStderr(), opts)), nil
	}
	return mdbox.NewLogger(slog.NewTextHandler(cmd.ErrOrStderr(), opts)), nil
}
