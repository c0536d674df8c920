package api

import (
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
)

// RequestID tags every request and response with a uuid X-Request-ID unless
// the caller supplied one.
func RequestID() echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	})
}

// AccessLog writes one entry per request. Server errors log at error level.
func AccessLog(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			entry := logger.WithFields(log.Fields{
				"method":     c.Request().Method,
				"route":      c.Path(),
				"status":     status,
				"total_ms":   float64(time.Since(start).Microseconds()) / 1000,
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
			})
			switch {
			case status >= http.StatusInternalServerError:
				entry.Error("request")
			case status >= http.StatusBadRequest:
				entry.Info("request")
			default:
				entry.Debug("request")
			}
			return nil
		}
	}
}

// Decompress inflates gzip request bodies through echo's Decompress
// middleware. A body that is not valid gzip is reported as a 400 instead of
// the raw reader error.
func Decompress() echo.MiddlewareFunc {
	inflate := middleware.Decompress()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		h := inflate(next)
		return func(c echo.Context) error {
			err := h(c)
			if errors.Is(err, gzip.ErrHeader) || errors.Is(err, io.ErrUnexpectedEOF) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body").SetInternal(err)
			}
			return err
		}
	}
}
