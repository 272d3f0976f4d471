// Package main is the entry point for the lectio command line.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmcdole/lectio/cmd/lectio/commands"
	"github.com/mmcdole/lectio/internal/app"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	os.Exit(run(os.Args[1:], nil))
}

func run(args []string, build commands.Builder) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if build == nil {
		build = func(ctx context.Context, opts app.Options) (*app.App, error) {
			a, err := app.New(ctx, opts)
			if err != nil {
				return nil, err
			}
			slog.SetDefault(a.Logger)
			a.Logger.Info("starting lectio", "version", Version)
			return a, nil
		}
	}

	cli := commands.New(Version, build)
	cli.SetArgs(args)
	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
