package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Topic lifecycle
	s.echo.POST("/api/topics", s.handleCreateTopic)
	s.echo.GET("/api/topics/:slug", s.handleTopicStats)
	s.echo.GET("/api/search", s.handleSearch)

	// Voting
	s.echo.POST("/api/topics/:slug/votes", s.handleCastVote)
	s.echo.GET("/api/topics/:slug/votes", s.handleListVotes)
	s.echo.GET("/api/topics/:slug/identity/:token", s.handleIdentityStats)

	// Operational: force one retention pass
	s.echo.POST("/api/sweep", s.handleSweep)
}
