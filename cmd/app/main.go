package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"DealWatch/internal/di"
	"DealWatch/pkg/config"
	"DealWatch/pkg/util"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	once := flag.Bool("once", false, "run a single monitoring cycle and exit")
	date := flag.String("date", util.CycleDate(time.Now()), "cycle date (YYYY-MM-DD) for -once")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s feed=%s", cfg.Environment, cfg.Feed.Backend)

	// Wire DI: Initialize all dependencies
	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	log.Printf("postgres: connected and schema ready - db: %s", cfg.Postgres.Database)
	if cfg.ClickHouse.Host != "" {
		log.Printf("clickhouse: connected and schema ready - db: %s", cfg.ClickHouse.Database)
	}

	if *once {
		if !util.ValidCycleDate(*date) {
			log.Fatalf("invalid cycle date %q, want YYYY-MM-DD", *date)
		}
		if err := app.RunOnce(context.Background(), *date); err != nil {
			log.Printf("cycle error: %v", err)
			os.Exit(1)
		}
		return
	}

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
