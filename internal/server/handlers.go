package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/relaycore/relay/internal/kv"
	"github.com/relaycore/relay/internal/maintenance"
	"github.com/relaycore/relay/internal/observability"
	"github.com/relaycore/relay/internal/pipeline"
	"github.com/relaycore/relay/internal/ratelimit"
	"github.com/relaycore/relay/internal/tasks"
	"github.com/relaycore/relay/internal/telemetry"
	"github.com/relaycore/relay/internal/webhooks"
)

// rateLimitDetail is the generic 429 message.
const rateLimitDetail = "Too many messages. Please wait before sending another."

type handler struct {
	pipeline   *pipeline.Pipeline
	runner     *tasks.Runner
	hooks      *webhooks.Store
	errors     *telemetry.ErrorTracker
	perf       *telemetry.PerfMonitor
	summarizer *maintenance.Summarizer
	store      kv.Store
	log        *observability.Logger
	model      string
}

// messageDTO is the request body for both message endpoints.
type messageDTO struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
	TenantID  string `json:"tenant_id"`
	Locale    string `json:"locale"`
}

func (m *messageDTO) validate() error {
	if m.Text == "" {
		return errors.New("text is required")
	}
	if m.SessionID == "" {
		return errors.New("session_id is required")
	}
	if m.TenantID == "" {
		return errors.New("tenant_id is required")
	}
	if m.Locale == "" {
		m.Locale = "en"
	}
	return nil
}

func (m *messageDTO) toRequest() pipeline.Request {
	return pipeline.Request{
		SessionID: m.SessionID,
		TenantID:  m.TenantID,
		Text:      m.Text,
		Locale:    m.Locale,
	}
}

func (h *handler) root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"message": "relay is running",
		"version": Version,
	})
}

func (h *handler) health(c echo.Context) error {
	storeUp := h.store != nil && h.store.Available(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]any{
		"status":          "healthy",
		"version":         Version,
		"model":           h.model,
		"store_available": storeUp,
	})
}

func (h *handler) processMessage(c echo.Context) error {
	var dto messageDTO
	if err := c.Bind(&dto); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := dto.validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	resp, err := h.pipeline.Process(c.Request().Context(), dto.toRequest())
	if err != nil {
		var rejected *pipeline.InputRejectedError
		if errors.As(err, &rejected) {
			return c.JSON(http.StatusBadRequest, map[string]any{
				"detail": pipeline.RejectionDetail,
			})
		}
		var limited *ratelimit.LimitExceededError
		if errors.As(err, &limited) {
			c.Response().Header().Set("Retry-After", strconv.FormatInt(limited.RetryAfter, 10))
			return c.JSON(http.StatusTooManyRequests, map[string]any{
				"detail":      rateLimitDetail,
				"retry_after": limited.RetryAfter,
				"limit":       limited.Limit,
				"window":      limited.Window,
			})
		}
		h.captureError(c, err, "/message")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to process message")
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *handler) processMessageAsync(c echo.Context) error {
	var dto messageDTO
	if err := c.Bind(&dto); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := dto.validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	taskID, err := h.runner.Submit(c.Request().Context(), dto.toRequest())
	if err != nil {
		if errors.Is(err, tasks.ErrQueueFull) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "task queue is full")
		}
		h.captureError(c, err, "/message/async")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to submit task")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"task_id":          taskID,
		"status":           tasks.StatusSubmitted,
		"message":          "Message submitted for async processing",
		"check_status_url": "/tasks/" + taskID,
	})
}

func (h *handler) taskStatus(c echo.Context) error {
	taskID := c.Param("task_id")
	status, ok := h.runner.Status(c.Request().Context(), taskID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	return c.JSON(http.StatusOK, status)
}

func (h *handler) refreshSummary(c echo.Context) error {
	tenantID := c.Param("tenant_id")
	sessionID := c.Param("session_id")

	summary := h.summarizer.Refresh(c.Request().Context(), tenantID, sessionID)
	if summary == "" {
		return c.JSON(http.StatusOK, map[string]any{
			"success": true,
			"message": "No history to summarize",
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"summary": summary,
	})
}

func (h *handler) subscribeWebhook(c echo.Context) error {
	var sub webhooks.Subscription
	if err := c.Bind(&sub); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid subscription data")
	}
	if sub.URL == "" || sub.TenantID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url and tenant_id are required")
	}

	created, ok := h.hooks.Add(c.Request().Context(), sub)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create webhook subscription")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":    true,
		"webhook_id": created.WebhookID,
		"message":    "Webhook subscription created successfully",
	})
}

func (h *handler) listWebhooks(c echo.Context) error {
	tenantID := c.Param("tenant_id")
	ctx := c.Request().Context()
	subs := h.hooks.List(ctx, tenantID)
	stats := h.hooks.TenantStats(ctx, tenantID)
	return c.JSON(http.StatusOK, map[string]any{
		"tenant_id":     tenantID,
		"subscriptions": subs,
		"statistics":    stats,
	})
}

func (h *handler) removeWebhook(c echo.Context) error {
	tenantID := c.Param("tenant_id")
	webhookID := c.Param("webhook_id")
	if !h.hooks.Remove(c.Request().Context(), tenantID, webhookID) {
		return echo.NewHTTPError(http.StatusNotFound, "webhook subscription not found")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Webhook " + webhookID + " removed successfully",
	})
}

func (h *handler) errorStats(c echo.Context) error {
	ctx := c.Request().Context()
	return c.JSON(http.StatusOK, map[string]any{
		"status":          "available",
		"statistics":      h.errors.Stats(ctx),
		"recent_errors":   h.errors.Recent(ctx, 10),
		"cache_available": h.store != nil && h.store.Available(ctx),
	})
}

func (h *handler) performanceStats(c echo.Context) error {
	endpoint := c.Param("endpoint")
	return c.JSON(http.StatusOK, h.perf.Stats(c.Request().Context(), endpoint))
}

func (h *handler) captureError(c echo.Context, err error, endpoint string) {
	ctx := c.Request().Context()
	h.log.Error(ctx, "request failed", "endpoint", endpoint, "error", err)
	if h.pipeline != nil {
		h.pipeline.CaptureError(ctx, err, map[string]any{"endpoint": endpoint})
	}
}
