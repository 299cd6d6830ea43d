// Command f1mcp serves Formula 1 data over the Model Context Protocol on
// standard input and output. Logs go to standard error so the protocol
// stream stays clean.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/shaharia-lab/f1mcp/cache"
	"github.com/shaharia-lab/f1mcp/config"
	"github.com/shaharia-lab/f1mcp/f1"
	"github.com/shaharia-lab/f1mcp/fetch"
	"github.com/shaharia-lab/f1mcp/mcp"
	"github.com/shaharia-lab/f1mcp/observability"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	logLevel := flag.String("log-level", "", "override the configured log level")
	flag.Parse()

	if err := run(*configPath, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "f1mcp: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, logLevel string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logrusLogger := logrus.New()
	logrusLogger.SetOutput(os.Stderr)
	logrusLogger.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	logrusLogger.SetLevel(level)

	logger := observability.NewLogrusLogger(logrusLogger).WithFields(map[string]interface{}{
		"instance": uuid.New().String(),
	})

	store, err := buildStore(cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.WithErr(err).Warn("Failed to close cache store")
		}
	}()

	retrier := fetch.NewClient(fetch.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay.Std(),
		Multiplier:  cfg.Retry.Multiplier,
		Jitter:      cfg.Retry.Jitter,
		Timeout:     cfg.Retry.Timeout.Std(),
	}, logger)

	provider := f1.NewClient(f1.ClientConfig{
		ErgastBaseURL:     cfg.Provider.ErgastBaseURL,
		OpenF1BaseURL:     cfg.Provider.OpenF1BaseURL,
		HTTPTimeout:       cfg.Provider.HTTPTimeout.Std(),
		RequestsPerSecond: cfg.Provider.RequestsPerSecond,
		Burst:             cfg.Provider.Burst,
	}, logger)

	svc := f1.NewService(provider, retrier, store, logger, cfg.Cache.DefaultTTL.Std())

	base, err := mcp.NewBaseServer(
		mcp.UseLogger(logger),
		mcp.UseServerInfo(cfg.Server.Name, cfg.Server.Version),
		mcp.UseWorkers(cfg.Server.Workers),
	)
	if err != nil {
		return err
	}
	if err := f1.Register(base, svc); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := mcp.NewStdIOServer(base, os.Stdin, os.Stdout)
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func buildStore(cfg config.CacheConfig, logger observability.Logger) (cache.Store, error) {
	switch cfg.Backend {
	case "memory":
		return cache.NewMemoryStore(logger), nil
	case "sqlite":
		db, err := sql.Open("sqlite3", cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite cache: %w", err)
		}
		return cache.NewSQLiteStore(db, logger)
	case "postgres":
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres cache: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("failed to reach postgres cache: %w", err)
		}
		return cache.NewPostgresStore(db, logger)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
