// Package main is the entry point for gallery-sync.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gallery-sync/internal/cli"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd, err := cli.NewRootCommand(version)
	if err != nil {
		return err
	}

	// Interrupts cancel the running operation; finished transfers are kept.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}
