// Package main wires the league simulator process lifecycle.
//
// It reads config from flags/env and dispatches the selected subcommand
// until completion or shutdown.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	leaguecmd "github.com/louisbranch/longshot/internal/cmd/league"
	"github.com/louisbranch/longshot/internal/platform/config"
)

func main() {
	cfg, err := leaguecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf(config.ExitConfig, "parse flags: %v", err)
	}
	log.SetPrefix("[LONGSHOT] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := leaguecmd.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		config.Exitf(leaguecmd.ExitCode(err), "longshot: %v", err)
	}
}
