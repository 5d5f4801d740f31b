package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/balaji-balu/codeboard/internal/metrics"
)

func NewRouter(deps Deps, logger *zap.Logger) *gin.Engine {
	if deps.ClearTimeout <= 0 {
		deps.ClearTimeout = 10 * time.Second
	}
	h := &handlers{deps: deps, logger: logger.Named("api")}

	r := gin.New()
	r.Use(RequestLogger(h.logger))
	r.Use(gin.Recovery())
	r.Use(metrics.Gin())

	r.GET("/healthz", h.healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if deps.WS != nil {
		r.GET("/ws", gin.WrapH(deps.WS))
	}

	api := r.Group("/api/v1")
	{
		api.GET("/status", h.status)
		api.POST("/skip", h.skip)
		api.POST("/clear", h.clear)
		api.GET("/settings", h.getSettings)
		api.PUT("/settings", h.putSettings)
		api.POST("/advisory/dismiss", h.dismissAdvisory)
	}

	return r
}

// RequestLogger logs every request at debug level.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
