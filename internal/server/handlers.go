package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/cydriclopez/badmeter.com/internal/domain"
	apperrors "github.com/cydriclopez/badmeter.com/internal/platform/errors"
)

const (
	maxTitleLength   = 100
	maxCommentLength = 400
	minTokenLength   = 2
	maxTokenLength   = 100

	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

type createTopicRequest struct {
	Title string `json:"title"`
	Token string `json:"token"`
}

type castVoteRequest struct {
	Token     string `json:"token"`
	Sentiment string `json:"sentiment"`
	Comment   string `json:"comment"`
}

func validateToken(token string) error {
	if len(token) < minTokenLength || len(token) > maxTokenLength {
		return apperrors.ValidationError(
			fmt.Sprintf("token must be between %d and %d characters", minTokenLength, maxTokenLength))
	}
	return nil
}

func (s *Server) handleCreateTopic(c echo.Context) error {
	var req createTopicRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return apperrors.ValidationError("title must not be empty")
	}
	if len(title) > maxTitleLength {
		return apperrors.ValidationError(
			fmt.Sprintf("title must be at most %d characters", maxTitleLength)).WithField("length", len(title))
	}
	if err := validateToken(req.Token); err != nil {
		return err
	}

	ctx := c.Request().Context()
	slug, created, err := s.votes.CreateTopic(ctx, title, req.Token, s.votes.Now())
	if errors.Is(err, domain.ErrSlugTaken) {
		return apperrors.ConflictError("a topic with this slug already exists").WithField("title", title)
	}
	if err != nil {
		return apperrors.InternalError("failed to create topic", err)
	}

	status := 200
	if created {
		status = 201
	}
	return c.JSON(status, map[string]any{
		"slug":    slug,
		"created": created,
	})
}

func (s *Server) handleTopicStats(c echo.Context) error {
	topicSlug := c.Param("slug")

	stats, err := s.votes.TopicStats(c.Request().Context(), topicSlug)
	if errors.Is(err, domain.ErrTopicNotFound) {
		return apperrors.NotFoundError("topic not found").WithField("slug", topicSlug)
	}
	if err != nil {
		return apperrors.InternalError("failed to load topic stats", err).WithField("slug", topicSlug)
	}

	return c.JSON(200, stats)
}

func (s *Server) handleCastVote(c echo.Context) error {
	topicSlug := c.Param("slug")

	var req castVoteRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if err := validateToken(req.Token); err != nil {
		return err
	}
	if len(req.Comment) > maxCommentLength {
		return apperrors.ValidationError(
			fmt.Sprintf("comment must be at most %d characters", maxCommentLength)).WithField("length", len(req.Comment))
	}

	sentiment, err := domain.ParseSentiment(req.Sentiment)
	if err != nil {
		return apperrors.ValidationError("sentiment must be \"up\" or \"down\"").WithField("sentiment", req.Sentiment)
	}

	ctx := c.Request().Context()
	outcome, err := s.votes.AttemptVote(ctx, topicSlug, req.Token, sentiment, req.Comment, s.votes.Now())
	if err != nil {
		return apperrors.TransientError("failed to record vote", err).WithField("slug", topicSlug)
	}

	switch outcome {
	case domain.OutcomeTopicNotFound:
		return apperrors.NotFoundError("topic not found").WithField("slug", topicSlug)
	case domain.OutcomeTopicPurged:
		return apperrors.ForbiddenError("topic was purged and no longer accepts votes").WithField("slug", topicSlug)
	}

	return c.JSON(200, map[string]any{"outcome": outcome})
}

func (s *Server) handleListVotes(c echo.Context) error {
	topicSlug := c.Param("slug")

	records, err := s.votes.ListVotes(c.Request().Context(), topicSlug)
	if errors.Is(err, domain.ErrTopicNotFound) {
		return apperrors.NotFoundError("topic not found").WithField("slug", topicSlug)
	}
	if err != nil {
		return apperrors.InternalError("failed to list votes", err).WithField("slug", topicSlug)
	}

	if records == nil {
		records = []domain.VoteRecord{}
	}
	return c.JSON(200, map[string]any{"votes": records})
}

func (s *Server) handleIdentityStats(c echo.Context) error {
	topicSlug := c.Param("slug")
	token := c.Param("token")
	if err := validateToken(token); err != nil {
		return err
	}

	stats, err := s.votes.IdentityStats(c.Request().Context(), token, topicSlug, s.votes.Now())
	if errors.Is(err, domain.ErrTopicNotFound) {
		return apperrors.NotFoundError("topic not found").WithField("slug", topicSlug)
	}
	if err != nil {
		return apperrors.InternalError("failed to load identity stats", err)
	}

	return c.JSON(200, stats)
}

func (s *Server) handleSearch(c echo.Context) error {
	term := c.QueryParam("term")

	limit := defaultSearchLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return apperrors.ValidationError("limit must be a positive integer").WithField("limit", raw)
		}
		limit = min(parsed, maxSearchLimit)
	}

	topics, err := s.votes.Search(c.Request().Context(), term, limit)
	if err != nil {
		return apperrors.InternalError("search failed", err)
	}

	if topics == nil {
		topics = []domain.TopicSummary{}
	}
	return c.JSON(200, map[string]any{"topics": topics})
}

func (s *Server) handleSweep(c echo.Context) error {
	if s.sweeper == nil {
		return apperrors.NotFoundError("sweeping is not enabled")
	}

	purged, err := s.sweeper.Sweep(c.Request().Context(), s.votes.Now())
	if err != nil {
		return apperrors.InternalError("sweep failed", err)
	}

	if purged == nil {
		purged = []string{}
	}
	return c.JSON(200, map[string]any{"purged": purged})
}
