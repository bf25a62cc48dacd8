// Package server exposes the HTTP surface: the message endpoints, webhook
// subscription management, task polling, monitoring reads, and Prometheus
// metrics.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relaycore/relay/internal/kv"
	"github.com/relaycore/relay/internal/maintenance"
	"github.com/relaycore/relay/internal/observability"
	"github.com/relaycore/relay/internal/pipeline"
	"github.com/relaycore/relay/internal/tasks"
	"github.com/relaycore/relay/internal/telemetry"
	"github.com/relaycore/relay/internal/webhooks"
)

// Version reported by the root and health endpoints.
const Version = "0.2.0"

// Server owns the echo instance and its dependencies.
type Server struct {
	echo    *echo.Echo
	addr    string
	handler *handler
}

// ServerConfig collects the HTTP surface's dependencies. Metrics and Perf
// are optional; handlers check for nil.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Pipeline   *pipeline.Pipeline
	Runner     *tasks.Runner
	Hooks      *webhooks.Store
	Errors     *telemetry.ErrorTracker
	Perf       *telemetry.PerfMonitor
	Summarizer *maintenance.Summarizer
	Store      kv.Store
	Metrics    *observability.Metrics
	Tracer     *observability.Tracer
	Log        *observability.Logger

	// Model is surfaced by the health endpoint.
	Model string
}

// New builds the server and registers all routes.
func New(cfg ServerConfig) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if cfg.ReadTimeout > 0 {
		e.Server.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		e.Server.WriteTimeout = cfg.WriteTimeout
	}

	h := &handler{
		pipeline:   cfg.Pipeline,
		runner:     cfg.Runner,
		hooks:      cfg.Hooks,
		errors:     cfg.Errors,
		perf:       cfg.Perf,
		summarizer: cfg.Summarizer,
		store:      cfg.Store,
		log:        cfg.Log,
		model:      cfg.Model,
	}

	e.Use(requestIDMiddleware())
	e.Use(tracingMiddleware(cfg.Tracer))
	e.Use(timingMiddleware(cfg.Metrics, cfg.Perf))
	e.Use(accessLogMiddleware(cfg.Log))

	e.GET("/", h.root)
	e.GET("/health", h.health)
	e.GET("/healthz", h.health)
	e.POST("/message", h.processMessage)
	e.POST("/message/async", h.processMessageAsync)
	e.GET("/tasks/:task_id", h.taskStatus)
	e.POST("/sessions/:tenant_id/:session_id/summary", h.refreshSummary)
	e.POST("/webhooks/subscribe", h.subscribeWebhook)
	e.GET("/webhooks/:tenant_id", h.listWebhooks)
	e.DELETE("/webhooks/:tenant_id/:webhook_id", h.removeWebhook)
	e.GET("/monitoring/errors", h.errorStats)
	e.GET("/monitoring/performance/:endpoint", h.performanceStats)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return &Server{echo: e, addr: cfg.Addr, handler: h}
}

// Start blocks serving HTTP until Shutdown is called or the listener
// fails.
func (s *Server) Start() error {
	err := s.echo.Start(s.addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
