package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/sundayezeilo/shortlink/internal/account"
	"github.com/sundayezeilo/shortlink/internal/auth"
	"github.com/sundayezeilo/shortlink/internal/config"
	"github.com/sundayezeilo/shortlink/internal/linkcache"
	"github.com/sundayezeilo/shortlink/internal/reserve"
	"github.com/sundayezeilo/shortlink/internal/server"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

// App holds the application dependencies and configuration.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Stores *Stores
	Redis  *redis.Client
	Cache  *linkcache.Cache
	Server *server.Server
}

// New initializes and returns a new App instance with all dependencies wired up.
func New(ctx context.Context) (*App, error) {
	LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := NewLogger(os.Stdout, cfg.App.LogLevel)

	logger.Info("starting application",
		"env", cfg.App.Environment,
		"version", cfg.Observability.ServiceVersion,
		"driver", cfg.Database.Driver,
	)

	a := &App{Config: cfg, Logger: logger}
	if err := a.wire(ctx); err != nil {
		_ = a.Shutdown()
		return nil, err
	}

	logger.Info("application initialized",
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"redis", cfg.Redis.Enabled,
		"cache", cfg.Cache.Enabled,
	)

	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg, logger := a.Config, a.Logger

	stores, err := OpenStores(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.Stores = stores

	svcCfg := &shortener.ServiceConfig{Logger: logger}
	resCfg := &shortener.ResolverConfig{Logger: logger}

	if cfg.Redis.Enabled {
		rdb, err := reserve.NewClient(ctx, reserve.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.Redis = rdb
		svcCfg.Reserver = reserve.NewRedis(rdb, cfg.Redis.ReservationTTL, logger)
	}

	if cfg.Cache.Enabled {
		c, err := linkcache.New(linkcache.Config{MaxItems: cfg.Cache.MaxItems, TTL: cfg.Cache.TTL})
		if err != nil {
			return fmt.Errorf("failed to create link cache: %w", err)
		}
		a.Cache = c
		svcCfg.Cache = c
		resCfg.Cache = c
	}

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Audience: cfg.Auth.JWTAudience,
	})
	if err != nil {
		return fmt.Errorf("failed to create token verifier: %w", err)
	}

	svc := shortener.NewService(stores.Links, svcCfg)
	handler := shortener.NewHandler(shortener.HandlerConfig{
		Service:  svc,
		Resolver: shortener.NewResolver(stores.Links, resCfg),
		Logger:   logger,
		BaseURL:  cfg.Server.BaseURL,
	})

	a.Server = server.New(cfg, logger, server.Deps{
		Links:    handler,
		Verifier: verifier,
		Accounts: account.NewService(stores.Accounts, logger),
	})
	return nil
}

// Start starts the application server.
func (a *App) Start(ctx context.Context) error {
	a.Logger.Info("server starting",
		"port", a.Config.Server.Port,
		"base_url", a.Config.Server.BaseURL,
	)

	if err := a.Server.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() error {
	a.Logger.Info("shutting down application")

	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("redis close failed", "error", err)
		}
	}
	if a.Stores != nil {
		if err := a.Stores.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
		a.Logger.Info("database connection closed")
	}

	return nil
}

// LoadEnv loads a .env file only in development and test environments.
func LoadEnv() {
	env := os.Getenv("APP_ENV")
	if env == "development" || env == "test" {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("no .env file found.")
		}
	}
}

// NewLogger creates a structured JSON logger at the given level.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel})
	return slog.New(handler)
}
