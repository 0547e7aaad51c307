// Package main provides the RuleIQ rule analytics service.
//
// This is the main analytics engine service: it ingests rule execution
// telemetry, serves performance metrics and efficiency scores, analyzes the
// impact of proposed rule changes, and runs automated test suites against
// rule definitions.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/ruleiq-io/ruleiq/internal/analytics"
	"github.com/ruleiq-io/ruleiq/internal/api"
	"github.com/ruleiq-io/ruleiq/internal/api/middleware"
	"github.com/ruleiq-io/ruleiq/internal/autotest"
	"github.com/ruleiq-io/ruleiq/internal/config"
	"github.com/ruleiq-io/ruleiq/internal/impact"
	"github.com/ruleiq-io/ruleiq/internal/rule"
	"github.com/ruleiq-io/ruleiq/internal/storage"
)

// Version information.
const (
	version = "1.0.0"
	name    = "ruleiq"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting RuleIQ service",
		slog.String("service", name),
		slog.String("version", version),
	)

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("read_timeout", serverConfig.ReadTimeout),
		slog.Duration("write_timeout", serverConfig.WriteTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.String("log_level", serverConfig.LogLevel.String()),
	)

	// Rate limiter (graceful shutdown handled by server.shutdown())
	rateLimitConfig := middleware.LoadRateLimitConfig()
	rateLimiter := middleware.NewInMemoryRateLimiter(rateLimitConfig)

	logger.Info("Rate limiter initialized",
		slog.Int("global_rps", rateLimitConfig.GlobalRPS),
		slog.Int("global_burst", rateLimitConfig.GlobalBurst),
		slog.Int("caller_rps", rateLimitConfig.CallerRPS),
		slog.Int("caller_burst", rateLimitConfig.CallerBurst),
		slog.Int("unauth_rps", rateLimitConfig.UnAuthRPS),
		slog.Int("unauth_burst", rateLimitConfig.UnAuthBurst),
	)

	storageConfig := storage.LoadConfig()

	dbConn, err := storage.NewConnection(storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = dbConn.Close() // Ensure connection closes on normal shutdown
	}()

	var keyStore storage.KeyStore

	authEnabled := config.GetEnvBool("RULEIQ_AUTH_ENABLED", false)
	if authEnabled {
		persistentKeys, err := storage.NewPersistentKeyStore(dbConn, logger)
		if err != nil {
			logger.Error("Failed to connect to persistent key store", slog.String("error", err.Error()))

			_ = dbConn.Close()
			//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
			os.Exit(1)
		}

		keyStore = persistentKeys

		logger.Info("API key authentication enabled",
			slog.String("database_url", storageConfig.MaskDatabaseURL()),
		)
	} else {
		logger.Warn("API key authentication disabled",
			slog.String("security", "Only use in trusted networks (localhost, VPN, internal)"),
			slog.String("note", "Set RULEIQ_AUTH_ENABLED=true to enable API key authentication"),
		)
	}

	metricsStore := storage.NewMetricsStore(dbConn, logger)

	logger.Info("Metrics store initialized",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
		slog.Int("database_max_open_conns", storageConfig.MaxOpenConns),
		slog.Int("database_max_idle_conns", storageConfig.MaxIdleConns),
		slog.Duration("database_conn_max_lifetime", storageConfig.ConnMaxLifetime),
		slog.Duration("database_conn_max_idle_time", storageConfig.ConnMaxIdleTime),
	)

	ruleStore := rule.NewInMemoryStore()

	rulesFile := config.GetEnvStr("RULEIQ_RULES_FILE", "")
	if rulesFile != "" {
		rules, err := rule.LoadCatalogFile(rulesFile)
		if err != nil {
			logger.Error("Failed to load rule catalog", slog.String("error", err.Error()))

			_ = dbConn.Close()
			os.Exit(1)
		}

		if err := ruleStore.LoadAll(rules); err != nil {
			logger.Error("Failed to load rule catalog", slog.String("error", err.Error()))

			_ = dbConn.Close()
			os.Exit(1)
		}

		logger.Info("Rule catalog loaded",
			slog.String("path", rulesFile),
			slog.Int("rules", len(rules)),
		)
	} else {
		logger.Warn("No rule catalog configured",
			slog.String("note", "Set RULEIQ_RULES_FILE to seed rule definitions; test suite creation requires known rules"),
		)
	}

	analyticsService := analytics.NewService(metricsStore, nil, logger)

	impactConfig := impact.LoadConfigFromEnv()
	impactAnalyzer := impact.NewAnalyzer(analyticsService, metricsStore, impactConfig, logger)

	logger.Info("Impact analyzer initialized",
		slog.Float64("weight_performance", impactConfig.Weights.Performance),
		slog.Float64("weight_business", impactConfig.Weights.Business),
		slog.Float64("weight_operational", impactConfig.Weights.Operational),
		slog.Float64("weight_risk", impactConfig.Weights.Risk),
	)

	autotestService, err := autotest.NewService(ruleStore, metricsStore, analyticsService, nil, logger)
	if err != nil {
		logger.Error("Failed to create testing service", slog.String("error", err.Error()))

		_ = dbConn.Close()
		os.Exit(1)
	}

	server := api.NewServer(serverConfig, api.Dependencies{
		Analytics:   analyticsService,
		Impact:      impactAnalyzer,
		Autotest:    autotestService,
		KeyStore:    keyStore,
		RateLimiter: rateLimiter,
	})

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("RuleIQ service stopped")
}
