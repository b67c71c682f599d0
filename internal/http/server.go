// Package http provides the HTTP API for contextlog.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/contextlog/internal/logging"
	"github.com/fyrsmithlabs/contextlog/internal/service"
)

// HeaderUserID carries the authenticated user id set by the upstream gateway.
const HeaderUserID = "X-User-ID"

// Server provides HTTP endpoints for contextlog.
type Server struct {
	echo   *echo.Echo
	svc    *service.Service
	logger  *zap.Logger
	config  *Config
	metrics *requestMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// RateLimit is the sustained requests per second allowed per user.
	// Zero disables rate limiting.
	RateLimit float64
	RateBurst int
}

// NewServer creates a new HTTP server.
func NewServer(svc *service.Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9090,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		svc:    svc,
		logger:  logger,
		config:  cfg,
		metrics: newRequestMetrics(otel.Meter(httpInstrumentationName), logger),
	}
	e.HTTPErrorHandler = s.handleError

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			ctx = logging.WithUserID(ctx, req.Header.Get(HeaderUserID))
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				// Resolve the status before logging it.
				c.Error(err)
				err = nil
			}
			duration := time.Since(start)

			logger.Info("http request", append(logging.ContextFields(ctx),
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
			)...)

			return err
		}
	})
	e.Use(tracingMiddleware())
	e.Use(s.metrics.middleware())

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1", s.requireUser)
	if s.config.RateLimit > 0 {
		v1.Use(s.rateLimiter())
	}

	v1.GET("/profile", s.handleGetProfile)
	v1.PUT("/profile", s.handleUpdateProfile)

	v1.GET("/receipts", s.handleListReceipts)
	v1.POST("/receipts", s.handleCreateReceipt)
	v1.GET("/receipts/:id", s.handleGetReceipt)
	v1.PUT("/receipts/:id", s.handleUpdateReceipt)
	v1.DELETE("/receipts/:id", s.handleDeleteReceipt)

	v1.GET("/moments", s.handleListMoments)
	v1.POST("/moments", s.handleCreateMoment)
	v1.GET("/moments/:id", s.handleGetMoment)
	v1.PUT("/moments/:id", s.handleUpdateMoment)
	v1.DELETE("/moments/:id", s.handleDeleteMoment)

	v1.GET("/timeline", s.handleTimeline)
	v1.GET("/deadzone", s.handleDeadZone)

	v1.GET("/perspective-cards", s.handleListCards)
	v1.POST("/perspective-cards/:id/dismiss", s.handleDismissCard)

	v1.GET("/reflections/status", s.handleReflectionStatus)
	v1.GET("/reflections/weekly", s.handleGetWeekly)
	v1.POST("/reflections/weekly", s.handleSaveWeekly)
	v1.GET("/reflections/weekly/export", s.handleExportWeekly)
	v1.GET("/reflections/history", s.handleReflectionHistory)
	v1.POST("/reflections/silence/dismiss", s.handleDismissSilence)
	v1.GET("/reflections/settings", s.handleGetSettings)
	v1.PUT("/reflections/settings", s.handleUpdateSettings)

	v1.GET("/notifications", s.handleListNotifications)
	v1.POST("/notifications", s.handleCreateNotification)
	v1.POST("/notifications/:id/read", s.handleReadNotification)
	v1.POST("/notifications/:id/dismiss", s.handleDismissNotification)

	v1.GET("/outcomes", s.handleListOutcomes)
	v1.GET("/outcomes/due", s.handleDueOutcome)
	v1.POST("/outcomes", s.handleRecordOutcome)

	v1.GET("/insights", s.handleListInsights)
	v1.GET("/insights/top", s.handleTopInsight)
	v1.GET("/insights/learning", s.handleWeeklyLearning)
	v1.POST("/insights/:id/surface", s.handleSurfaceInsight)
	v1.POST("/insights/:id/dismiss", s.handleDismissInsight)
}

// requireUser rejects requests without a user id header.
func (s *Server) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().Header.Get(HeaderUserID) == "" {
			s.metrics.reject(c, rejectMissingUser)
			return echo.NewHTTPError(http.StatusUnauthorized, "missing "+HeaderUserID+" header")
		}
		return next(c)
	}
}

func userID(c echo.Context) string {
	return c.Request().Header.Get(HeaderUserID)
}

// rateLimiter limits each user to the configured request rate.
func (s *Server) rateLimiter() echo.MiddlewareFunc {
	burst := s.config.RateBurst
	if burst <= 0 {
		burst = int(s.config.RateLimit)
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(s.config.RateLimit),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return userID(c), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			s.logger.Debug("rate limited", zap.String("user_id", identifier))
			s.metrics.reject(c, rejectRateLimited)
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
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
