package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/okovacs/pulseboard/internal/api"
	"github.com/okovacs/pulseboard/internal/config"
	"github.com/okovacs/pulseboard/internal/scheduler"
	"github.com/okovacs/pulseboard/internal/source"
	"github.com/okovacs/pulseboard/internal/source/queryd"
	"github.com/okovacs/pulseboard/internal/source/synthetic"
	"github.com/okovacs/pulseboard/internal/storage"
	"github.com/okovacs/pulseboard/internal/storage/sqlite"
)

func main() {
	// Parse flags
	cfg := parseFlags()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Starting Pulseboard server...")
	log.Printf("Config: port=%d, dataset-dir=%s, source=%s", cfg.Port, cfg.DatasetDirectory, cfg.SourceType)

	// Open snapshot storage when a sqlite path is configured
	var store storage.Storage
	if cfg.SQLitePath != "" {
		sqliteStore, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to open sqlite storage: %v", err)
		}
		defer sqliteStore.Close()
		store = sqliteStore
		log.Printf("Using sqlite storage: %s", cfg.SQLitePath)
	}

	// Create record source
	var recordSource source.RecordSource
	switch cfg.SourceType {
	case "queryd":
		recordSource = queryd.NewAdapter(queryd.DefaultConfig(cfg.QuerydURL))
		log.Printf("Using queryd source: %s", cfg.QuerydURL)

	case "sqlite":
		if store == nil {
			log.Fatalf("sqlite source requires -sqlite-path")
		}
		recordSource = store
		log.Printf("Using sqlite record source")

	case "synthetic":
		adapter := synthetic.NewAdapter()
		if cfg.SyntheticFixture != "" {
			if err := adapter.LoadFixture(cfg.SyntheticFixture); err != nil {
				log.Fatalf("Failed to load fixture %s: %v", cfg.SyntheticFixture, err)
			}
			log.Printf("Using synthetic source with fixture: %s", cfg.SyntheticFixture)
		} else {
			log.Printf("Using synthetic source (no fixture specified)")
		}
		recordSource = adapter

	default:
		log.Fatalf("Unknown source type: %s", cfg.SourceType)
	}

	// Create scheduler
	sched := scheduler.NewScheduler(recordSource, cfg.DatasetDirectory, cfg.SchemaPath)
	if store != nil {
		sched.SetStorage(store)
	}

	// Load dataset definitions
	if err := sched.LoadDatasets(); err != nil {
		log.Fatalf("Failed to load datasets: %v", err)
	}

	// Start scheduler
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// Create and start HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	apiServer := api.NewServer(sched, recordSource, addr, cfg.WebhookSecret)

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- apiServer.Start()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Fatalf("Server error: %v", err)

	case sig := <-shutdown:
		log.Printf("Received signal: %v", sig)

		// Graceful shutdown
		ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
		defer cancel()

		log.Println("Shutting down server...")
		if err := apiServer.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down server: %v", err)
		}

		log.Println("Stopping scheduler...")
		sched.Stop()

		log.Println("Shutdown complete")
	}
}

func parseFlags() config.Config {
	cfg := config.DefaultConfig()

	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.Host, "host", cfg.Host, "HTTP server host")
	flag.StringVar(&cfg.DatasetDirectory, "dataset-dir", cfg.DatasetDirectory, "Directory containing dataset YAML files")
	flag.StringVar(&cfg.SchemaPath, "schema", cfg.SchemaPath, "Path to the dataset JSON schema")
	flag.StringVar(&cfg.SourceType, "source", cfg.SourceType, "Record source type (synthetic|queryd|sqlite)")
	flag.StringVar(&cfg.QuerydURL, "queryd-url", cfg.QuerydURL, "Query daemon URL (required for queryd source)")
	flag.StringVar(&cfg.SyntheticFixture, "synthetic-fixture", cfg.SyntheticFixture, "Path to a synthetic record fixture file")
	flag.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "Path to the sqlite database file")
	flag.StringVar(&cfg.WebhookSecret, "webhook-secret", cfg.WebhookSecret, "Shared secret for webhook signature verification")

	flag.Parse()

	return cfg
}
