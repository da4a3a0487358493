// Command mdbox builds, inspects and queries workspace snapshots.
//
//	mdbox generate --config run.yaml --store ./runs --events 1000000 run-42.mdbx
//	mdbox inspect --store ./runs run-42.mdbx
//	mdbox signal --store s3://bucket/runs --norm volume run-42.mdbx 0.1 0.2 12
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
