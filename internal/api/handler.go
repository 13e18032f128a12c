package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"stock-ledger/internal/ledger"
	"stock-ledger/internal/service"
	"stock-ledger/internal/util"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	inventory   *service.InventoryService
	deps        map[string]Pinger
	corsOrigins []string
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler. deps are pinged by /ready.
func NewHandler(inventory *service.InventoryService, deps map[string]Pinger, corsOrigins []string) *Handler {
	return &Handler{
		inventory:   inventory,
		deps:        deps,
		corsOrigins: corsOrigins,
		logger:      util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	if len(h.corsOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  h.corsOrigins,
			AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", ActorHeader},
			ExposeHeaders: []string{"Content-Length"},
		}))
	}

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(actorMiddleware())
	{
		v1.POST("/items", h.createItem)
		v1.GET("/items", h.listItems)
		v1.GET("/items/:id", h.getItem)
		v1.PUT("/items/:id/thresholds", h.updateThresholds)
		v1.POST("/items/:id/discontinue", h.discontinue)
		v1.GET("/items/:id/movements", h.itemMovements)

		stock := v1.Group("/items/:id/stock")
		stock.POST("/add", h.addStock)
		stock.POST("/remove", h.removeStock)
		stock.POST("/adjust", h.adjustStock)
		stock.POST("/count", h.countStock)
		stock.POST("/return", h.returnStock)
		stock.POST("/reserve", h.reserveStock)
		stock.POST("/release", h.releaseStock)
		stock.POST("/commit", h.commitStock)

		v1.POST("/transfers", h.transferStock)
		v1.GET("/movements", h.listMovements)

		v1.GET("/alerts", h.listAlerts)
		v1.POST("/alerts/:id/acknowledge", h.acknowledgeAlert)
		v1.POST("/alerts/:id/resolve", h.resolveAlert)

		v1.GET("/reorder-suggestions", h.reorderSuggestions)
		v1.GET("/reports/inventory", h.inventoryReport)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"details": failed,
			"time":    time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// ActorHeader names the caller recorded on movements
const ActorHeader = "X-Actor"

func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := c.GetHeader(ActorHeader); actor != "" {
			c.Request = c.Request.WithContext(ledger.WithActor(c.Request.Context(), actor))
		}
		c.Next()
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

// statusFor maps ledger errors to HTTP status codes
func statusFor(err error) int {
	switch service.ErrorReason(err) {
	case "not_found":
		return http.StatusNotFound
	case "invalid":
		return http.StatusBadRequest
	case "duplicate", "concurrent_modification":
		return http.StatusConflict
	case "insufficient_stock", "discontinued":
		return http.StatusUnprocessableEntity
	case "transfer_failed":
		return http.StatusConflict
	case "cancelled":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(c *gin.Context, message string, err error) {
	status := statusFor(err)
	body := gin.H{
		"error":   message,
		"details": err.Error(),
	}
	if ledger.IsRetryable(err) {
		body["retryable"] = true
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, message string, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

var errBadTime = errors.New("expected RFC3339 timestamp")

func parseTime(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errBadTime
	}
	return &t, nil
}
