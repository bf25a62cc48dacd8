package server

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"

	"github.com/relaycore/relay/internal/observability"
	"github.com/relaycore/relay/internal/telemetry"
)

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware attaches a request id to the context and echoes it
// back in the response. An inbound X-Request-ID header is honored.
func requestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			ctx := observability.WithRequestID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set(requestIDHeader, id)
			return next(c)
		}
	}
}

// tracingMiddleware opens one span per request, named by the route
// template.
func tracingMiddleware(tracer *observability.Tracer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if tracer == nil {
				return next(c)
			}
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			ctx, span := tracer.Start(c.Request().Context(), c.Request().Method+" "+path,
				attribute.String("http.method", c.Request().Method),
				attribute.String("http.route", path),
			)
			defer span.End()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			observability.RecordError(span, err)
			span.SetAttributes(attribute.Int("http.status_code", c.Response().Status))
			return err
		}
	}
}

// timingMiddleware records request latency into the Prometheus histogram
// and the per-endpoint performance monitor. The route template is used as
// the label, not the raw URL, so path parameters don't explode cardinality.
func timingMiddleware(metrics *observability.Metrics, perf *telemetry.PerfMonitor) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			elapsed := time.Since(start)

			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			if metrics != nil {
				metrics.HTTPRequestDuration.
					WithLabelValues(c.Request().Method, path, strconv.Itoa(status)).
					Observe(elapsed.Seconds())
			}
			if perf != nil {
				perf.Record(c.Request().Context(), path, float64(elapsed.Milliseconds()))
			}
			return err
		}
	}
}

// accessLogMiddleware writes one structured line per request.
func accessLogMiddleware(log *observability.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			log.Info(c.Request().Context(), "http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return err
		}
	}
}
