package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/mdwatch/regpulse/pkg/config"
	"github.com/mdwatch/regpulse/pkg/content"
	"github.com/mdwatch/regpulse/pkg/dedup"
	"github.com/mdwatch/regpulse/pkg/feed"
	"github.com/mdwatch/regpulse/pkg/pipeline"
	"github.com/mdwatch/regpulse/pkg/registry"
	"github.com/mdwatch/regpulse/pkg/repository"
	"github.com/mdwatch/regpulse/server"
)

// Opts with all CLI options
type Opts struct {
	Config string `short:"c" long:"config" env:"CONFIG" default:"regpulse.yml" description:"configuration file"`
	Listen string `short:"l" long:"listen" env:"LISTEN" description:"listen address override"`
	Sync   bool   `short:"s" long:"sync" description:"run a single full sync and exit"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	setupLog(opts.Debug)

	log.Printf("[INFO] starting regpulse version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	if err := run(ctx, opts); err != nil {
		log.Printf("[ERROR] regpulse failed: %v", err)
		cancel()
		os.Exit(1)
	}

	cancel()
	log.Print("[INFO] shutdown complete")
}

// run wires the pipeline together and blocks until the context is cancelled
func run(ctx context.Context, opts Opts) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.Listen != "" {
		cfg.Server.Listen = opts.Listen
	}

	store, err := repository.New(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("[WARN] store close error: %v", err)
		}
	}()

	reg := registry.New(cfg.Sources)
	fetcher := feed.NewFetcher(cfg.Fetch.Timeout, cfg.Fetch.UserAgent, cfg.Fetch.MaxBodySize)
	var lookup dedup.Lookup = dedup.NewIndexLookup(store.Updates)
	if cfg.Dedup.Strategy == "window" {
		lookup = dedup.NewWindowLookup(store.Updates, cfg.Dedup.RecentWindow)
	}

	var enricher pipeline.Enricher
	if cfg.Enrichment.Enabled {
		enricher = content.NewExtractor(cfg.Enrichment.Timeout, cfg.Fetch.UserAgent, cfg.Enrichment.MinTextLength)
	}

	coordinator := pipeline.New(reg, fetcher, store.Updates, lookup, enricher, pipeline.Config{
		MaxWorkers:     cfg.Schedule.MaxWorkers,
		RequestDelay:   cfg.Schedule.RequestDelay,
		MinTitleLength: cfg.Parser.MinTitleLength,
		RegexFallback:  !cfg.Parser.DisableRegexFallback,
	})

	if opts.Sync {
		stats, err := coordinator.RunFullSync(ctx)
		if err != nil {
			return fmt.Errorf("full sync: %w", err)
		}
		out, _ := json.MarshalIndent(stats, "", "  ") //nolint:errcheck // stats always marshals
		fmt.Println(string(out))
		return nil
	}

	go coordinator.StartContinuousMonitoring(ctx, cfg.Schedule.MonitorInterval)

	srv := server.New(cfg, coordinator, store.Updates, revision, opts.Debug)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func setupLog(dbg bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))
	if len(secs) > 0 {
		logOpts = append(logOpts, lgr.Secret(secs...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
