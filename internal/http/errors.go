package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextlog/internal/memoryloop"
	"github.com/fyrsmithlabs/contextlog/internal/notify"
	"github.com/fyrsmithlabs/contextlog/internal/service"
	"github.com/fyrsmithlabs/contextlog/internal/store"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, service.ErrInvalid),
		errors.Is(err, memoryloop.ErrInvalidOutcome),
		errors.Is(err, notify.ErrUnknownType):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, memoryloop.ErrOutcomeFinal):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes err as a JSON error body. Internal errors are logged
// and hidden from the client.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := statusFor(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err))
		msg = "internal server error"
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, ErrorResponse{Error: msg})
	}
	if err != nil {
		s.logger.Warn("failed to write error response", zap.Error(err))
	}
}
