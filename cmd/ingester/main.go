// Package main provides the RuleIQ execution telemetry ingester.
//
// The ingester consumes rule execution telemetry from a Kafka topic and
// feeds it into the analytics pipeline, as an alternative to the HTTP
// recording endpoint for platforms that already publish execution events.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/ruleiq-io/ruleiq/internal/analytics"
	"github.com/ruleiq-io/ruleiq/internal/config"
	"github.com/ruleiq-io/ruleiq/internal/storage"
)

// Version information.
const (
	version = "1.0.0"
	name    = "ingester"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logLevel := config.GetEnvLogLevel("RULEIQ_SERVER_LOG_LEVEL", slog.LevelInfo)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))

	logger.Info("Starting RuleIQ telemetry ingester",
		slog.String("service", name),
		slog.String("version", version),
	)

	ingesterConfig, err := LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Loaded Kafka configuration",
		slog.String("brokers", strings.Join(ingesterConfig.Brokers, ",")),
		slog.String("topic", ingesterConfig.Topic),
		slog.String("group_id", ingesterConfig.GroupID),
	)

	storageConfig := storage.LoadConfig()

	dbConn, err := storage.NewConnection(storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = dbConn.Close()
	}()

	metricsStore := storage.NewMetricsStore(dbConn, logger)
	analyticsService := analytics.NewService(metricsStore, nil, logger)

	consumer := NewConsumer(ingesterConfig, analyticsService, logger)

	defer func() {
		_ = consumer.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := consumer.Run(ctx); err != nil {
		logger.Error("Consumer stopped with error", slog.String("error", err.Error()))

		_ = consumer.Close()
		_ = dbConn.Close()
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}

	logger.Info("RuleIQ telemetry ingester stopped")
}
