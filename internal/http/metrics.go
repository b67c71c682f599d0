package http

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/contextlog/internal/http"

// Rejection reasons recorded before a request reaches a handler.
const (
	rejectMissingUser = "missing_user"
	rejectRateLimited = "rate_limited"
)

// requestMetrics instruments the journal API. Labels are the route
// template and status class, so user ids and entry ids never become
// series.
type requestMetrics struct {
	requests   metric.Int64Counter
	latency    metric.Float64Histogram
	inflight   metric.Int64UpDownCounter
	rejections metric.Int64Counter
}

// newRequestMetrics creates the API instruments. An instrument that fails
// to register stays nil and is skipped.
func newRequestMetrics(meter metric.Meter, logger *zap.Logger) *requestMetrics {
	m := &requestMetrics{}
	var err error

	if m.requests, err = meter.Int64Counter(
		"contextlog.http.requests_total",
		metric.WithDescription("API requests by method, route template and status class."),
		metric.WithUnit("{request}"),
	); err != nil {
		logger.Warn("failed to create requests counter", zap.Error(err))
	}

	if m.latency, err = meter.Float64Histogram(
		"contextlog.http.request_duration_seconds",
		metric.WithDescription("API request latency by method, route template and status class."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5),
	); err != nil {
		logger.Warn("failed to create latency histogram", zap.Error(err))
	}

	if m.inflight, err = meter.Int64UpDownCounter(
		"contextlog.http.inflight_requests",
		metric.WithDescription("API requests currently being served."),
		metric.WithUnit("{request}"),
	); err != nil {
		logger.Warn("failed to create inflight gauge", zap.Error(err))
	}

	if m.rejections, err = meter.Int64Counter(
		"contextlog.http.rejections_total",
		metric.WithDescription("Requests refused before reaching a handler, by reason."),
		metric.WithUnit("{request}"),
	); err != nil {
		logger.Warn("failed to create rejections counter", zap.Error(err))
	}

	return m
}

// middleware records one observation per request after the error handler
// has resolved the response status.
func (m *requestMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.inflight != nil {
				m.inflight.Add(ctx, 1)
				defer m.inflight.Add(ctx, -1)
			}

			if err := next(c); err != nil {
				c.Error(err)
			}

			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("route", normalizePath(c.Path())),
				attribute.String("status_class", statusClass(c.Response().Status)),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.latency != nil {
				m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			return nil
		}
	}
}

func (m *requestMetrics) reject(c echo.Context, reason string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.Add(c.Request().Context(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// normalizePath returns the route template. Unmatched requests have no
// template and share one label.
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
