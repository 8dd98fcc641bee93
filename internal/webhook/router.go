package webhook

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"wallet-alerts/internal/observability"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
)

// Options configures the HTTP surface.
type Options struct {
	Pipeline     Pipeline
	Secret       string
	MaxBodyBytes int64
	Timeout      time.Duration

	// Live serves the in-app websocket feed at /ws when set.
	Live http.Handler
	// Ready reports dependency health for /health. Nil means always ready.
	Ready func(ctx context.Context) error

	Logger  logrus.FieldLogger
	Metrics *observability.Metrics
}

// NewRouter builds the service router.
func NewRouter(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = observability.DiscardLogger()
	}
	h := NewHandler(opts.Pipeline, opts.Secret, opts.MaxBodyBytes, opts.Timeout, opts.Logger, opts.Metrics)

	router := gin.New()
	router.Use(requestID(), recovery(opts.Logger))

	router.Any("/webhook", h.Handle)
	router.GET("/health", health(opts.Ready))
	router.GET("/metrics", gin.WrapH(observability.Handler()))
	if opts.Live != nil {
		router.GET("/ws", gin.WrapH(opts.Live))
	}
	return router
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func recovery(log logrus.FieldLogger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"panic":      recovered,
		}).Error("handler panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	})
}

func health(ready func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
