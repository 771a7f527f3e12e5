package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/wardenhq/warden/internal/api"
	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/ratelimit"
	"github.com/wardenhq/warden/internal/sandbox"
	"github.com/wardenhq/warden/internal/session"
	"github.com/wardenhq/warden/internal/storage"
	"github.com/wardenhq/warden/internal/store"
	"github.com/wardenhq/warden/internal/tools"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("WARDEN_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	httpPort := envOrDefault("WARDEN_HTTP_PORT", "8080")
	toolTimeoutMs := envOrDefaultInt("WARDEN_TOOL_TIMEOUT_MS", 5000)
	exprTimeoutMs := envOrDefaultInt("WARDEN_EXPR_TIMEOUT_MS", 1000)
	maxSteps := envOrDefaultInt("WARDEN_SANDBOX_MAX_STEPS", 10_000_000)
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	cacheTTL := envOrDefaultInt("WARDEN_AUTH_CACHE_TTL_S", 30)

	defaults := policy.Default()
	defaults.MaxRequestsPerMinute = envOrDefaultInt("WARDEN_MAX_REQUESTS_PER_MINUTE", defaults.MaxRequestsPerMinute)
	defaults.MaxRequestsPerHour = envOrDefaultInt("WARDEN_MAX_REQUESTS_PER_HOUR", defaults.MaxRequestsPerHour)
	defaults.MaxResponseLength = envOrDefaultInt("WARDEN_MAX_RESPONSE_LENGTH", defaults.MaxResponseLength)

	logger.Info("starting warden server",
		zap.String("http_port", httpPort),
		zap.Int("tool_timeout_ms", toolTimeoutMs),
		zap.Int("max_requests_per_minute", defaults.MaxRequestsPerMinute),
		zap.Int("max_requests_per_hour", defaults.MaxRequestsPerHour),
	)

	// Core components
	exec := sandbox.NewExecutor(sandbox.Config{
		ExprTimeout: time.Duration(exprTimeoutMs) * time.Millisecond,
		MaxSteps:    uint64(maxSteps),
	}, logger)
	registry := tools.NewRegistry(exec, time.Duration(toolTimeoutMs)*time.Millisecond, logger)
	policies := policy.NewStore(defaults)
	limiter := ratelimit.NewLimiter()

	// Storage — ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if clickhouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// Postgres pool (optional; enables identity admin + persistence)
	var pgStore *store.Store
	if postgresDSN != "" {
		db, err := sql.Open("pgx", postgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		pgStore = store.NewStore(db)
		logger.Info("postgres connected")

		reloadPolicies(pgStore, policies, logger)
		reloadTools(pgStore, registry, logger)
	} else {
		logger.Info("no POSTGRES_DSN set, running without persistence")
	}

	// ClickHouse reader (for the events endpoint)
	var chReader *storage.Reader
	if clickhouseDSN != "" {
		var err error
		chReader, err = storage.NewReader(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = chReader.Close() }()
			logger.Info("clickhouse reader connected")
		}
	}

	guard := session.NewGuard(limiter, policies, registry, writer, logger)

	deps := &api.Dependencies{
		Store:    pgStore,
		Guard:    guard,
		Policies: policies,
		Limiter:  limiter,
		Registry: registry,
		Reader:   chReader,
		Loop:     session.EchoLoop,
		Logger:   logger,
		CacheTTL: time.Duration(cacheTTL) * time.Second,
	}
	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("warden server stopped")
}

// reloadPolicies seeds the in-memory policy store from persisted rows.
func reloadPolicies(pgStore *store.Store, policies *policy.Store, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := pgStore.ListPolicies(ctx)
	if err != nil {
		logger.Warn("policy reload failed", zap.Error(err))
		return
	}
	loaded := 0
	for _, row := range rows {
		cfg := policy.Default()
		if err := json.Unmarshal(row.Config, cfg); err != nil {
			logger.Warn("persisted policy not parseable, skipping",
				zap.String("identity", row.IdentityID),
				zap.Error(err),
			)
			continue
		}
		policies.Replace(row.IdentityID, cfg)
		loaded++
	}
	logger.Info("policies reloaded", zap.Int("count", loaded))
}

// reloadTools re-registers persisted tool definitions. A definition that
// no longer passes validation is skipped with a diagnostic, not fatal.
func reloadTools(pgStore *store.Store, registry *tools.Registry, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	recs, err := pgStore.ListToolDefinitions(ctx)
	if err != nil {
		logger.Warn("tool reload failed", zap.Error(err))
		return
	}
	loaded := 0
	for _, rec := range recs {
		var params []tools.Parameter
		if len(rec.Parameters) > 0 {
			if err := json.Unmarshal(rec.Parameters, &params); err != nil {
				logger.Warn("persisted tool parameters not parseable, skipping",
					zap.String("identity", rec.IdentityID),
					zap.String("tool", rec.Name),
					zap.Error(err),
				)
				continue
			}
		}
		def := &tools.Definition{
			Name:        rec.Name,
			Description: rec.Description,
			Parameters:  params,
			Code:        rec.Code,
		}
		if err := registry.Register(rec.IdentityID, def); err != nil {
			logger.Warn("persisted tool rejected on reload, skipping",
				zap.String("identity", rec.IdentityID),
				zap.String("tool", rec.Name),
				zap.Error(err),
			)
			continue
		}
		loaded++
	}
	logger.Info("tools reloaded", zap.Int("count", loaded))
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
