package surface

import (
	"go.uber.org/zap"

	"github.com/balaji-balu/codeboard/internal/advisory"
)

// Log writes frames to a zap logger. Countdown ticks go to debug.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger.Named("surface")}
}

func (l *Log) ShowCode(f Frame) {
	l.logger.Info("show code",
		zap.String("code", f.Code),
		zap.Int("font_vw", f.Layout.FontSize),
		zap.Int("wrap", f.Layout.Wrap),
		zap.Bool("overflow", f.Overflow),
		zap.Int("seconds", f.Seconds),
	)
}

func (l *Log) HideCode() { l.logger.Debug("hide code") }

func (l *Log) Countdown(n int) { l.logger.Debug("countdown", zap.Int("remaining", n)) }

func (l *Log) Speaking(on bool) { l.logger.Debug("speaking", zap.Bool("on", on)) }

func (l *Log) QueueSize(n int) { l.logger.Debug("queue size", zap.Int("size", n)) }

func (l *Log) Screensaver(on bool, bg string) {
	l.logger.Debug("screensaver", zap.Bool("on", on), zap.String("background", bg))
}

func (l *Log) Advisory(a *advisory.Advisory) {
	if a == nil {
		l.logger.Info("advisory cleared")
		return
	}
	l.logger.Warn("advisory", zap.String("reason", string(a.Reason)), zap.String("message", a.Message))
}

func (l *Log) Status(st Status) {
	l.logger.Debug("status",
		zap.String("connection", string(st.Connection)),
		zap.Int("healthy", st.Healthy),
		zap.Int("total", st.Total),
	)
}
