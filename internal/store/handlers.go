package store

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/balaji-balu/codeboard/internal/metrics"
	"github.com/balaji-balu/codeboard/pkg/model"
)

type Handlers struct {
	store  Store
	logger *zap.Logger
}

func NewHandlers(s Store, logger *zap.Logger) *Handlers {
	return &Handlers{store: s, logger: logger.Named("store")}
}

// Register mounts the store endpoints on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/events", h.Poll)
	r.POST("/events", h.Append)
	r.GET("/clear", h.Clear)
	r.POST("/clear", h.Clear)
	r.GET("/api/send", h.Send)
	r.POST("/api/send", h.Send)
	r.GET("/check", h.Check)
}

func (h *Handlers) Poll(c *gin.Context) {
	since, err := strconv.ParseInt(c.DefaultQuery("last_id", "0"), 10, 64)
	if err != nil || since < 0 {
		since = 0
	}
	c.Header("Cache-Control", "no-cache, must-revalidate")
	resp, err := h.store.Since(c.Request.Context(), since)
	if err != nil {
		h.logger.Error("poll failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) Append(c *gin.Context) {
	var req model.AppendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.StoreAppends.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, model.AppendResponse{Error: "Invalid input"})
		return
	}
	h.append(c, req)
}

// Send is the operator entry point. It accepts the code as a query or form
// value as well as JSON.
func (h *Handlers) Send(c *gin.Context) {
	var req model.AppendRequest
	if strings.HasPrefix(c.ContentType(), "application/json") {
		if err := c.ShouldBindJSON(&req); err != nil {
			metrics.StoreAppends.WithLabelValues("invalid").Inc()
			c.JSON(http.StatusBadRequest, model.AppendResponse{Error: "Invalid input"})
			return
		}
	} else {
		req.Code = c.Query("code")
		if req.Code == "" {
			req.Code = c.PostForm("code")
		}
	}
	if req.NodeID == "" {
		req.NodeID = "api"
	}
	h.append(c, req)
}

func (h *Handlers) append(c *gin.Context, req model.AppendRequest) {
	msg, err := h.store.Append(c.Request.Context(), req.Code, req.Timestamp, req.NodeID)
	switch {
	case errors.Is(err, ErrBlankCode):
		metrics.StoreAppends.WithLabelValues("blank").Inc()
		c.JSON(http.StatusBadRequest, model.AppendResponse{Error: "code cannot be empty"})
		return
	case err != nil:
		metrics.StoreAppends.WithLabelValues("error").Inc()
		h.logger.Error("append failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.AppendResponse{Error: err.Error()})
		return
	}
	metrics.StoreAppends.WithLabelValues("ok").Inc()
	h.refreshGauge(c)
	h.logger.Info("code stored",
		zap.Int64("id", msg.ID),
		zap.String("code", msg.Code),
		zap.String("node", msg.NodeID))
	c.JSON(http.StatusOK, model.AppendResponse{Success: true, MessageID: msg.ID})
}

func (h *Handlers) Clear(c *gin.Context) {
	if err := h.store.Clear(c.Request.Context()); err != nil {
		h.logger.Error("clear failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ClearResponse{Error: err.Error()})
		return
	}
	h.refreshGauge(c)
	h.logger.Info("store cleared")
	c.JSON(http.StatusOK, model.ClearResponse{Success: true})
}

// Check answers peer keepalive probes.
func (h *Handlers) Check(c *gin.Context) {
	if c.Query("action") != "keepalive" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action"})
		return
	}
	c.JSON(http.StatusOK, model.KeepaliveResponse{Status: "ok"})
}

func (h *Handlers) refreshGauge(c *gin.Context) {
	if n, err := h.store.Len(c.Request.Context()); err == nil {
		metrics.StoreMessages.Set(float64(n))
	}
}
