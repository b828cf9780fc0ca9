package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/cydriclopez/badmeter.com/internal/domain"
	"github.com/cydriclopez/badmeter.com/internal/platform/config"
	apperrors "github.com/cydriclopez/badmeter.com/internal/platform/errors"
)

// VoteService is the engine surface the HTTP layer consumes. Kept as an
// interface so handler tests can swap in a mock.
type VoteService interface {
	Now() time.Time
	CreateTopic(ctx context.Context, title, token string, at time.Time) (string, bool, error)
	AttemptVote(ctx context.Context, topicSlug, token string, sentiment domain.Sentiment, comment string, at time.Time) (domain.Outcome, error)
	TopicStats(ctx context.Context, topicSlug string) (*domain.TopicStats, error)
	IdentityStats(ctx context.Context, token, topicSlug string, at time.Time) (*domain.IdentityStats, error)
	Search(ctx context.Context, prefix string, limit int) ([]domain.TopicSummary, error)
	ListVotes(ctx context.Context, topicSlug string) ([]domain.VoteRecord, error)
}

// SweepService triggers one retention pass on demand.
type SweepService interface {
	Sweep(ctx context.Context, at time.Time) ([]string, error)
}

// postgresHealthChecker is a minimal interface for PostgreSQL health checks
type postgresHealthChecker interface {
	Ping(ctx context.Context) error
}

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	votes     VoteService
	sweeper   SweepService
	pgChecker postgresHealthChecker
	redis     *goredis.Client
	startTime time.Time
}

// NewServer wires the HTTP layer. sweeper, pgChecker, and redis may be nil;
// readiness then skips the corresponding checks.
func NewServer(cfg *config.Config, votes VoteService, sweeper SweepService, pgChecker postgresHealthChecker, redis *goredis.Client) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:      e,
		config:    cfg,
		votes:     votes,
		sweeper:   sweeper,
		pgChecker: pgChecker,
		redis:     redis,
		startTime: time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
