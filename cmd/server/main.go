package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/cydriclopez/badmeter.com/internal/domain"
	"github.com/cydriclopez/badmeter.com/internal/ledger"
	"github.com/cydriclopez/badmeter.com/internal/platform/config"
	"github.com/cydriclopez/badmeter.com/internal/platform/logging"
	"github.com/cydriclopez/badmeter.com/internal/platform/retry"
	"github.com/cydriclopez/badmeter.com/internal/postgres"
	"github.com/cydriclopez/badmeter.com/internal/server"
	"github.com/cydriclopez/badmeter.com/internal/sweep"
	"github.com/cydriclopez/badmeter.com/internal/vote"
)

const statsCacheTTL = 10 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	policy := retry.Policy{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Database connection failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}

	pool, err := retry.Do(ctx, policy, retry.AlwaysRetry, func() (*pgxpool.Pool, error) {
		return postgres.Connect(ctx, cfg.DatabaseURL)
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to parse Redis URL", "error", err)
		os.Exit(1)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func runGracefulShutdown(srv *server.Server, cancelSweep context.CancelFunc, stopEviction func()) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		cancelSweep()
		stopEviction()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	policy := domain.Policy{
		Cooldown:    cfg.Cooldown,
		GraceWindow: cfg.GraceWindow,
		VoteQuota:   cfg.VoteQuota,
		Location:    cfg.Location(),
	}

	var store domain.Ledger
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool = setupDB(cfg)
		defer pool.Close()
		store = postgres.NewLedger(pool, policy.Location)
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory ledger (data is lost on restart)")
		store = ledger.NewMemory()
	}

	var redisClient *goredis.Client
	var elector *sweep.LeaderElector
	if cfg.RedisURL != "" {
		redisClient = setupRedis(context.Background(), cfg)
		defer func() { _ = redisClient.Close() }()
		elector = sweep.NewLeaderElector(redisClient, instanceID())
	}

	statsCache := vote.NewStatsCache(statsCacheTTL, clock)
	stopEviction := statsCache.StartEvictionTimer(1 * time.Minute)

	engine := vote.NewEngine(store, clock, policy, statsCache)

	sweeper := sweep.NewSweeper(store, clock, policy, engine.InvalidateStats)
	runner := sweep.NewRunner(sweeper, elector, clock, cfg.SweepInterval)

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	go runner.Run(sweepCtx)

	// Pass nil explicitly to avoid a typed-nil interface in the readiness check.
	var srv *server.Server
	if pool != nil {
		srv = server.NewServer(cfg, engine, sweeper, pool, redisClient)
	} else {
		srv = server.NewServer(cfg, engine, sweeper, nil, redisClient)
	}

	done := runGracefulShutdown(srv, cancelSweep, stopEviction)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
