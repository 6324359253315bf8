package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/worldloom/worldloom/internal/cli"
)

func main() {
	// SIGINT/SIGTERM cancel the context; in-flight regeneration units
	// observe it and unstarted units are never scheduled.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "worldloom: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
