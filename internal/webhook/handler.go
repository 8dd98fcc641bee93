// Package webhook is the HTTP entry point of the pipeline.
package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"wallet-alerts/internal/ingest"
	"wallet-alerts/internal/observability"
	"wallet-alerts/internal/orchestrator"
)

// Defaults.
const (
	DefaultMaxBodyBytes = 5 << 20
	DefaultTimeout      = 60 * time.Second
)

// Pipeline processes one decoded batch.
type Pipeline interface {
	ProcessBatch(ctx context.Context, batch *ingest.Batch) (*orchestrator.RunResult, error)
}

// Handler serves POST /webhook.
type Handler struct {
	pipeline     Pipeline
	secret       []byte
	maxBodyBytes int64
	timeout      time.Duration
	log          logrus.FieldLogger
	metrics      *observability.Metrics
}

// NewHandler creates a Handler. An empty secret disables authentication.
func NewHandler(pipeline Pipeline, secret string, maxBodyBytes int64, timeout time.Duration, log logrus.FieldLogger, metrics *observability.Metrics) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = observability.DiscardLogger()
	}
	if metrics == nil {
		metrics = observability.DefaultMetrics()
	}
	return &Handler{
		pipeline:     pipeline,
		secret:       []byte(secret),
		maxBodyBytes: maxBodyBytes,
		timeout:      timeout,
		log:          log.WithField("component", "webhook"),
		metrics:      metrics,
	}
}

// Handle authenticates, decodes and runs the batch. Auth is checked before
// the method so unauthenticated probes learn nothing about the route.
func (h *Handler) Handle(c *gin.Context) {
	log := h.log.WithField("request_id", c.GetString(requestIDKey))
	defer func() {
		h.metrics.WebhookRequests.WithLabelValues(strconv.Itoa(c.Writer.Status())).Inc()
	}()

	if !h.authorized(c.GetHeader("Authorization")) {
		log.Warn("unauthorized webhook call")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if c.Request.Method != http.MethodPost {
		c.Header("Allow", http.MethodPost)
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body: " + err.Error()})
		return
	}

	batch, err := ingest.DecodeBatch(body)
	if err != nil {
		log.WithError(err).Warn("rejected webhook body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The batch runs to completion even if the sender hangs up; the
	// sender retries on any non-200 and redelivery is a no-op.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.timeout)
	defer cancel()

	result, err := h.pipeline.ProcessBatch(ctx, batch)
	if err != nil {
		log.WithError(err).Error("webhook batch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log.WithFields(logrus.Fields{
		"processed": result.Processed,
		"created":   result.Created,
		"failed":    result.Failed,
	}).Info("webhook batch processed")
	c.JSON(http.StatusOK, gin.H{"success": true, "processed": result.Processed})
}

func (h *Handler) authorized(header string) bool {
	if len(h.secret) == 0 {
		return true
	}
	token := strings.TrimSpace(header)
	if after, ok := strings.CutPrefix(token, "Bearer "); ok {
		token = strings.TrimSpace(after)
	}
	return subtle.ConstantTimeCompare([]byte(token), h.secret) == 1
}
