// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command omnichat connects to every configured chat backend and shows
// their channels side by side in one terminal interface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	flag "maunium.net/go/mauflag"

	"github.com/aiku/omnichat/pkg/config"
	"github.com/aiku/omnichat/pkg/conn"
	"github.com/aiku/omnichat/pkg/connector"
	"github.com/aiku/omnichat/pkg/tui"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const Version = "0.1.0"

var configPath = flag.MakeFull("c", "config", "The path to your config file.", "config.yaml").String()
var generateConfig = flag.MakeFull("g", "generate-config", "Write the example config to the config path and quit.", "false").Bool()
var version = flag.MakeFull("v", "version", "View omnichat version and quit.", "false").Bool()
var wantHelp, _ = flag.MakeHelpFlag()

func main() {
	flag.SetHelpTitles(
		"omnichat - one terminal for many chat servers.",
		"omnichat [-hgv] [-c <path>]",
	)
	err := flag.Parse()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		flag.PrintHelp()
		os.Exit(1)
	} else if *wantHelp {
		flag.PrintHelp()
		os.Exit(0)
	} else if *version {
		fmt.Printf("omnichat %s (tag %s, commit %s, built %s)\n", Version, Tag, Commit, BuildTime)
		return
	} else if *generateConfig {
		if err = config.WriteExample(*configPath); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("Wrote example config to", *configPath)
		return
	}
	if err = run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("%w (use -g to write an example config)", err)
	}
	log, err := cfg.Logger()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", Version).Int("backends", len(cfg.Backends)).Msg("Starting omnichat")
	_, _ = fmt.Fprintf(os.Stderr, "Connecting to %d backends...\n", len(cfg.Backends))

	sink := conn.NewSink()
	defer sink.Close()
	conns, openErr := connector.OpenAll(ctx, cfg.Backends, sink, *log)
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()
	if len(conns) == 0 {
		return fmt.Errorf("no backend could be opened: %w", openErr)
	}

	model := tui.New(ctx, tui.Options{
		Connections:     conns,
		Events:          sink.Events(),
		TimestampFormat: cfg.UI.TimestampFormat,
		Log:             *log,
	})
	for _, c := range conns {
		model.Status("connected to %s (%d channels)", c.Name(), len(c.Channels()))
	}
	if openErr != nil {
		for _, line := range strings.Split(openErr.Error(), "\n") {
			model.Status("%s", line)
		}
	}
	if err = tui.Run(ctx, model); err != nil && ctx.Err() == nil {
		return fmt.Errorf("interface stopped: %w", err)
	}
	log.Info().Int("undelivered_events", sink.Pending()).Msg("Shutting down")
	return nil
}
