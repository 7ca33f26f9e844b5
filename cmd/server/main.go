package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/reelquiz/internal/artwork"
	"github.com/playperu/reelquiz/internal/catalog"
	"github.com/playperu/reelquiz/internal/config"
	"github.com/playperu/reelquiz/internal/database"
	"github.com/playperu/reelquiz/internal/engine"
	"github.com/playperu/reelquiz/internal/game"
	"github.com/playperu/reelquiz/internal/handler/health"
	"github.com/playperu/reelquiz/internal/hintgen"
	"github.com/playperu/reelquiz/internal/migrations"
	"github.com/playperu/reelquiz/internal/ratelimit"
	"github.com/playperu/reelquiz/internal/server"
	"github.com/playperu/reelquiz/internal/sessionstore"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- SQLite ---
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(ctx, db, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	checks := map[string]health.Checker{"sqlite": health.SQL(db)}

	// --- Catalog ---
	var gen hintgen.Generator
	if cfg.HintGenURL != "" {
		gen = hintgen.Validating(hintgen.NewHTTP(cfg.HintGenURL, cfg.HintGenTimeout))
		logger.Info("hint generation enabled", "url", cfg.HintGenURL)
	}
	cat := catalog.New(db, gen, logger)
	if cfg.CatalogSeed {
		if err := cat.SeedIfEmpty(ctx); err != nil {
			return fmt.Errorf("seeding catalog: %w", err)
		}
	}

	// --- Sessions ---
	retention := sessionstore.Retention{IdleTimeout: cfg.IdleTimeout, TerminalGrace: cfg.TerminalGrace}
	store, closeStore, err := openStore(ctx, cfg, db, retention, checks)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("session store ready", "backend", string(cfg.SessionBackend))

	broker := server.NewBroker()
	eng := engine.New(cat, store, engine.Config{
		Game:      game.Config{MaxAttempts: cfg.MaxAttempts},
		Retention: retention,
	}, logger,
		engine.WithLimiter(ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitIdle)),
		engine.WithNotifier(broker),
	)

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Sessions:       eng,
		Search:         cat,
		Broker:         broker,
		Checks:         checks,
		PublicBaseURL:  cfg.PublicBaseURL,
		Artwork:        artwork.New(cfg.ArtworkSource, cfg.ArtworkTimeout),
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	g.Go(func() error {
		logger.Info("starting session sweeper", "interval", cfg.SweepInterval.String())
		return eng.RunSweeper(gctx, cfg.SweepInterval)
	})

	return g.Wait()
}

// openStore builds the configured session backend and registers its
// health check. The returned func releases whatever the backend opened.
func openStore(ctx context.Context, cfg *config.Config, db *sql.DB, retention sessionstore.Retention, checks map[string]health.Checker) (sessionstore.Store, func(), error) {
	switch cfg.SessionBackend {
	case config.BackendSQLite:
		store, err := sessionstore.NewSQLite(ctx, db, retention)
		if err != nil {
			return nil, nil, fmt.Errorf("creating sqlite session store: %w", err)
		}
		return store, func() {}, nil

	case config.BackendRedis:
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		checks["redis"] = health.Redis(rdb)
		return sessionstore.NewRedis(rdb, retention, cfg.RedisPrefix), func() { rdb.Close() }, nil

	default:
		return sessionstore.NewMemory(retention), func() {}, nil
	}
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}
