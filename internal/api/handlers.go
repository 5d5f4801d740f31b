package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/balaji-balu/codeboard/internal/advisory"
	"github.com/balaji-balu/codeboard/pkg/model"
)

// Display is the scheduler as seen by the control API.
type Display interface {
	State() string
	Session() (model.DisplaySession, bool)
	Queued() []string
	ScreensaverOn() bool
	Skip() bool
	Clear(ctx context.Context) error
	Settings() model.Settings
	UpdateSettings(model.Settings) error
}

type Feed interface {
	Watermark() int64
	Failures() int
}

type Health interface {
	Summary() model.HealthSummary
}

type Advisories interface {
	Active() (advisory.Advisory, bool)
	Dismiss()
}

type Deps struct {
	Display    Display
	Feed       Feed
	Health     Health
	Advisories Advisories
	// WS serves the live surface feed. Optional.
	WS http.Handler
	// ClearTimeout bounds the store clear call. Defaults to 10s.
	ClearTimeout time.Duration
}

type handlers struct {
	deps   Deps
	logger *zap.Logger
}

func (h *handlers) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) status(c *gin.Context) {
	st := model.TerminalStatus{
		State:       h.deps.Display.State(),
		Queue:       h.deps.Display.Queued(),
		Screensaver: h.deps.Display.ScreensaverOn(),
		Settings:    h.deps.Display.Settings(),
	}
	if sess, ok := h.deps.Display.Session(); ok {
		st.Session = &sess
	}
	if h.deps.Feed != nil {
		st.Watermark = h.deps.Feed.Watermark()
		st.Failures = h.deps.Feed.Failures()
	}
	if h.deps.Health != nil {
		st.Health = h.deps.Health.Summary()
	}
	if h.deps.Advisories != nil {
		if a, ok := h.deps.Advisories.Active(); ok {
			st.Advisory = &model.AdvisoryInfo{Reason: string(a.Reason), Message: a.Message, RaisedAt: a.RaisedAt}
		}
	}
	c.JSON(http.StatusOK, st)
}

func (h *handlers) skip(c *gin.Context) {
	skipped := h.deps.Display.Skip()
	c.JSON(http.StatusOK, gin.H{"skipped": skipped})
}

func (h *handlers) clear(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deps.ClearTimeout)
	defer cancel()
	if err := h.deps.Display.Clear(ctx); err != nil {
		h.logger.Error("clear failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handlers) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Display.Settings())
}

// putSettings applies the body over the current settings, so a partial
// object only changes the fields it names.
func (h *handlers) putSettings(c *gin.Context) {
	set := h.deps.Display.Settings()
	if err := c.ShouldBindJSON(&set); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.deps.Display.UpdateSettings(set); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, model.ErrInvalidSettings) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.deps.Display.Settings())
}

func (h *handlers) dismissAdvisory(c *gin.Context) {
	if h.deps.Advisories == nil {
		c.Status(http.StatusNoContent)
		return
	}
	h.deps.Advisories.Dismiss()
	c.Status(http.StatusNoContent)
}
