package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/pharmacy/internal/metrics"
	"github.com/mamadbah2/pharmacy/internal/server/handlers"
)

// HealthFunc reports whether the backing store is reachable.
type HealthFunc func(c *gin.Context) error

// Options carries the optional pieces of the engine.
type Options struct {
	Health  HealthFunc
	Metrics *metrics.Metrics
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
}

// New wires the Gin engine with required routes and middlewares.
func New(handler *handlers.InventoryHandler, opts Options, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger, opts.Metrics))

	r.GET("/healthz", func(c *gin.Context) {
		if opts.Health != nil {
			if err := opts.Health(c); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	api := r.Group("/api")
	api.GET("/medicines", handler.ListMedicines)
	api.GET("/medicines/:id", handler.GetMedicine)
	api.GET("/aisles", handler.ListAisles)
	api.GET("/aisles/:id", handler.GetAisle)
	api.GET("/history", handler.ListHistory)
	api.GET("/stock-history", handler.ListStockHistory)
	api.GET("/reports/stock-summary", handler.StockSummary)
	api.GET("/alerts", handler.ListAlerts)

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(c.Request.Method, route, c.Writer.Status())

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
