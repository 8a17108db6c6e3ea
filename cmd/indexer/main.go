// Package main is the entry point for the search index syncer. It polls
// Postgres for updated events and pushes them to the hosted search index.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/onnwee/mingle/internal/event"
	"github.com/onnwee/mingle/internal/middleware"
	"github.com/onnwee/mingle/internal/search"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Mingle Search Index Syncer")
		fmt.Println()
		fmt.Println("Usage: indexer [options]")
		fmt.Println()
		fmt.Println("Environment:")
		fmt.Println("  DATABASE_URL       Postgres connection string (required)")
		fmt.Println("  SEARCH_INDEX_URL   search index base URL (required)")
		fmt.Println("  SEARCH_API_KEY     search index API key (required)")
		fmt.Println("  SYNC_INTERVAL      poll interval, e.g. 30s")
		fmt.Println("  SYNC_BATCH_SIZE    events per push")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	env := os.Getenv("MINGLE_ENV")
	if env == "" {
		env = "development"
	}
	logger := middleware.NewLogger(env)
	slog.SetDefault(logger)

	databaseURL := os.Getenv("DATABASE_URL")
	indexURL := os.Getenv("SEARCH_INDEX_URL")
	apiKey := os.Getenv("SEARCH_API_KEY")
	if databaseURL == "" || indexURL == "" || apiKey == "" {
		logger.Error("DATABASE_URL, SEARCH_INDEX_URL and SEARCH_API_KEY are required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	pingCancel()

	metrics := search.NewMetrics()
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	client, err := search.NewClient(search.DefaultConfig(indexURL, apiKey), logger, metrics)
	if err != nil {
		logger.Error("failed to create search client", "error", err)
		os.Exit(1)
	}

	syncer := search.NewSyncer(event.NewPostgresRepository(db), client, logger)
	if raw := os.Getenv("SYNC_INTERVAL"); raw != "" {
		interval, err := time.ParseDuration(raw)
		if err != nil {
			logger.Error("invalid SYNC_INTERVAL", "value", raw, "error", err)
			os.Exit(1)
		}
		syncer.SetInterval(interval)
	}
	if raw := os.Getenv("SYNC_BATCH_SIZE"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			logger.Error("invalid SYNC_BATCH_SIZE", "value", raw)
			os.Exit(1)
		}
		syncer.SetBatchSize(size)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting search index syncer", "index_url", indexURL)
	if err := syncer.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("syncer stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("syncer stopped")
}
