// Package server provides the inbound HTTP API: the webhook endpoint
// that feeds the pipeline, the review-recording endpoint, and the
// health and metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/voltgrid/cancelflow/internal/config"
	"github.com/voltgrid/cancelflow/internal/pipeline"
	"github.com/voltgrid/cancelflow/internal/store"
)

// Processor runs one inbound email through the pipeline.
type Processor interface {
	Process(ctx context.Context, in pipeline.Inbound) (*pipeline.Outcome, error)
}

// ReviewStore persists reviewer decisions.
type ReviewStore interface {
	Draft(ctx context.Context, id string) (*store.Draft, error)
	CreateHumanReview(ctx context.Context, r *store.HumanReview) error
}

// Server provides the HTTP endpoints.
type Server struct {
	echo      *echo.Echo
	processor Processor
	reviews   ReviewStore
	logger    *zap.Logger
	config    config.ServerConfig
}

// NewServer creates the HTTP server.
func NewServer(processor Processor, reviews ReviewStore, logger *zap.Logger, cfg config.ServerConfig) (*Server, error) {
	if processor == nil {
		return nil, fmt.Errorf("processor cannot be nil")
	}
	if reviews == nil {
		return nil, fmt.Errorf("review store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:      e,
		processor: processor,
		reviews:   reviews,
		logger:    logger,
		config:    cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/inbound", s.handleInbound)
	v1.POST("/reviews", s.handleReview)
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleInbound accepts one normalized email and runs it through the
// pipeline. The response body is the pipeline outcome; duplicates are
// reported with the existing ticket rather than an error.
func (s *Server) handleInbound(c echo.Context) error {
	var in pipeline.Inbound
	if err := c.Bind(&in); err != nil {
		s.logger.Warn("invalid inbound request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if in.Source == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "source field is required")
	}
	if in.RawEmail == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "raw_email field is required")
	}

	out, err := s.processor.Process(c.Request().Context(), in)
	if err != nil {
		s.logger.Error("pipeline processing failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "processing failed")
	}

	status := http.StatusCreated
	if out.NotCancellation || out.Duplicate {
		status = http.StatusOK
	}
	return c.JSON(status, out)
}

// ReviewRequest is the request body for POST /api/v1/reviews.
type ReviewRequest struct {
	TicketID  string `json:"ticket_id"`
	DraftID   string `json:"draft_id"`
	Decision  string `json:"decision"`
	FinalText string `json:"final_text"`
	Reviewer  string `json:"reviewer"`
}

// handleReview records a reviewer decision for a draft.
func (s *Server) handleReview(c echo.Context) error {
	var req ReviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if !store.ValidDecision(store.Decision(req.Decision)) {
		return echo.NewHTTPError(http.StatusBadRequest, "decision must be approve, edit or reject")
	}
	if req.Reviewer == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reviewer field is required")
	}

	draft, err := s.reviews.Draft(c.Request().Context(), req.DraftID)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "draft not found")
	}
	if err != nil {
		s.logger.Error("loading draft", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "loading draft failed")
	}

	finalText := req.FinalText
	if finalText == "" {
		finalText = draft.Text
	}

	review := &store.HumanReview{
		TicketID:  draft.TicketID,
		DraftID:   draft.ID,
		Decision:  store.Decision(req.Decision),
		FinalText: finalText,
		Reviewer:  req.Reviewer,
	}
	if err := s.reviews.CreateHumanReview(c.Request().Context(), review); err != nil {
		s.logger.Error("recording review", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "recording review failed")
	}
	return c.JSON(http.StatusCreated, review)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
