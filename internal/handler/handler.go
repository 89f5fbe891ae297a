package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/domain"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/intake"
)

// IntakeService is the ingest surface the handler depends on.
type IntakeService interface {
	Ingest(ctx context.Context, payload []byte, deliveryID, eventType string) (*domain.Event, error)
}

// Pinger reports storage liveness for the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ErrorResponse is the error body shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// AcceptedResponse acknowledges a stored delivery.
type AcceptedResponse struct {
	DeliveryID string `json:"delivery_id"`
	Status     string `json:"status"`
}

// Handler exposes the webhook endpoint, the health check, and /metrics.
// Signature verification happens upstream before requests reach this
// handler.
type Handler struct {
	intake IntakeService
	pinger Pinger
	router *gin.Engine
	log    *zap.Logger
}

// NewHandler creates the HTTP handler.
func NewHandler(intakeSvc IntakeService, pinger Pinger, gatherer prometheus.Gatherer, log *zap.Logger) *Handler {
	h := &Handler{
		intake: intakeSvc,
		pinger: pinger,
		router: gin.Default(),
		log:    log,
	}

	h.router.GET("/health", h.healthCheck)
	h.router.POST("/webhooks/github", h.handleWebhook)
	h.router.GET("/metrics", gin.WrapH(
		promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// healthCheck reports storage liveness.
func (h *Handler) healthCheck(c *gin.Context) {
	if err := h.pinger.Ping(c.Request.Context()); err != nil {
		h.log.Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleWebhook accepts one delivery and acknowledges fast; evaluation runs
// on the worker pool and its outcome is never part of this response.
func (h *Handler) handleWebhook(c *gin.Context) {
	deliveryID := c.GetHeader("X-GitHub-Delivery")
	eventType := c.GetHeader("X-GitHub-Event")

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "unreadable request body",
		})
		return
	}

	event, err := h.intake.Ingest(c.Request.Context(), payload, deliveryID, eventType)
	if errors.Is(err, intake.ErrMalformedDelivery) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}
	if err != nil {
		h.log.Error("Delivery ingestion failed",
			zap.String("delivery_id", deliveryID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "failed to store delivery",
		})
		return
	}

	if event == nil {
		// Ping: acknowledged, nothing persisted.
		c.String(http.StatusOK, "pong")
		return
	}

	c.JSON(http.StatusAccepted, AcceptedResponse{
		DeliveryID: event.DeliveryID,
		Status:     "accepted",
	})
}
