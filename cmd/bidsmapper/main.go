// Package main provides the CLI entrypoint for bidsmapper.
//
// bidsmapper classifies source files against a bidsmap template and
// resolves each file's output identity:
//   - check validates a template and reports its diagnostics
//   - map classifies a manifest or a sidecar tree and prints the decisions
//   - config shows or writes the configuration
package main

import (
	"context"
	"os"
	"os/signal"

	"bidsmapper/cmd/bidsmapper/commands"
	"bidsmapper/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := commands.RootCmd.ExecuteContext(ctx)

	stop()
	logger.Sync()

	if err != nil {
		os.Exit(1)
	}
}
