package display

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/balaji-balu/codeboard/internal/layout"
	"github.com/balaji-balu/codeboard/internal/metrics"
	"github.com/balaji-balu/codeboard/internal/speech"
	"github.com/balaji-balu/codeboard/internal/surface"
	"github.com/balaji-balu/codeboard/pkg/model"
)

// Every method in this file expects s.mu to be held.

// advanceLocked shows the next queued code, or settles into idle.
func (s *Scheduler) advanceLocked() {
	if s.closed || !s.machine.Is(StateIdle) {
		return
	}
	code, ok := s.queue.Dequeue()
	if !ok {
		s.refreshScreensaverLocked()
		return
	}
	s.queueChangedLocked()
	s.guardLocked("show", func() { s.showLocked(code) })
}

func (s *Scheduler) showLocked(code string) {
	s.cycle++
	token := s.cycle
	set := s.settings

	s.queue.SetCurrent(code)
	if err := s.machine.Event(context.Background(), eventShow, code); err != nil {
		s.logger.Warn("FSM: show rejected", zap.String("state", s.machine.Current()), zap.Error(err))
	}

	sess := &session{
		code:          code,
		startedAt:     s.clock.Now(),
		remaining:     set.DisplaySeconds,
		narrationDone: !set.NarrationEnabled,
	}
	s.session = sess
	s.refreshScreensaverLocked()

	var lay layout.Layout
	if set.FontSize > 0 {
		lay = layout.FitFixed(code, set.FontSize, s.cfg.Viewport)
	} else {
		lay = layout.Fit(code, s.cfg.Viewport)
	}
	if lay.Overflow {
		s.logger.Warn("code does not fit, using smallest layout", zap.String("code", code))
	}
	s.surface.ShowCode(surface.Frame{
		Code:     code,
		Layout:   lay,
		Seconds:  set.DisplaySeconds,
		Color:    set.Color,
		Overflow: lay.Overflow,
	})
	s.surface.Countdown(sess.remaining)

	sess.tick = s.clock.AfterFunc(s.cfg.Tick, func() { s.onTick(token) })
	safety := time.Duration(set.DisplaySeconds+s.cfg.SafetyMargin) * s.cfg.Tick
	sess.safety = s.clock.AfterFunc(safety, func() { s.onSafety(token) })

	if set.NarrationEnabled {
		sess.speaking = true
		sess.cancelNarration = s.narrator.Narrate(code, speech.Callbacks{
			OnStart: func() { s.onNarrationStart(token) },
			OnEnd:   func() { s.onNarrationEnd(token, nil) },
			OnError: func(err error) { s.onNarrationEnd(token, err) },
		})
	}

	s.logger.Info("showing code",
		zap.String("code", code),
		zap.Int("font_vw", lay.FontSize),
		zap.Int("seconds", set.DisplaySeconds),
		zap.Bool("narration", set.NarrationEnabled),
	)
}

func (s *Scheduler) onTick(token uint64) {
	s.callback(token, "countdown", func(sess *session) {
		if sess.remaining > 1 {
			sess.remaining--
			s.surface.Countdown(sess.remaining)
			sess.tick = s.clock.AfterFunc(s.cfg.Tick, func() { s.onTick(token) })
			return
		}
		sess.countdownDone = true
		sess.tick = nil
		if !sess.narrationDone {
			sess.remaining = model.Narrating
			s.surface.Countdown(model.Narrating)
			return
		}
		sess.remaining = 0
		s.surface.Countdown(0)
		s.hideLocked()
	})
}

func (s *Scheduler) onNarrationStart(token uint64) {
	s.callback(token, "narration start", func(*session) {
		s.surface.Speaking(true)
	})
}

func (s *Scheduler) onNarrationEnd(token uint64, err error) {
	s.callback(token, "narration end", func(sess *session) {
		if err != nil {
			metrics.NarrationFaults.Inc()
			s.logger.Warn("narration fault, treating as complete", zap.String("code", sess.code), zap.Error(err))
		}
		s.narrationFinishedLocked(sess)
	})
}

func (s *Scheduler) narrationFinishedLocked(sess *session) {
	sess.narrationDone = true
	sess.speaking = false
	sess.cancelNarration = nil
	s.surface.Speaking(false)
	if sess.countdownDone {
		s.hideLocked()
	}
}

func (s *Scheduler) onSafety(token uint64) {
	s.callback(token, "safety timeout", func(sess *session) {
		s.logger.Warn("display cycle overran, forcing advance",
			zap.String("code", sess.code),
			zap.Bool("countdown_done", sess.countdownDone),
			zap.Bool("narration_done", sess.narrationDone),
		)
		s.hideLocked()
	})
}

// callback runs fn for the cycle identified by token, if it is still the
// current one.
func (s *Scheduler) callback(token uint64, what string, fn func(*session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || token != s.cycle || s.session == nil {
		return
	}
	sess := s.session
	s.guardLocked(what, func() { fn(sess) })
}

// guardLocked runs fn and, if it panics, abandons the current cycle so the
// queue keeps moving.
func (s *Scheduler) guardLocked(what string, fn func()) {
	var pc panics.Catcher
	pc.Try(fn)
	r := pc.Recovered()
	if r == nil {
		return
	}
	s.logger.Error("display cycle fault", zap.String("during", what), zap.Error(r.AsError()))
	s.teardownLocked()
	s.scheduleAdvanceLocked()
}

// hideLocked ends the current cycle and schedules the next one.
func (s *Scheduler) hideLocked() {
	s.teardownLocked()
	s.scheduleAdvanceLocked()
}

// teardownLocked leaves the scheduler idle with no timers and no narration
// belonging to the old cycle.
func (s *Scheduler) teardownLocked() {
	s.cycle++
	if sess := s.session; sess != nil {
		if sess.tick != nil {
			sess.tick.Stop()
		}
		if sess.safety != nil {
			sess.safety.Stop()
		}
		if sess.cancelNarration != nil {
			sess.cancelNarration()
		}
		s.session = nil
		s.paint(func() { s.surface.HideCode() })
		if sess.speaking {
			s.paint(func() { s.surface.Speaking(false) })
		}
	}
	s.queue.ClearCurrent()
	if s.machine.Is(StateShowing) {
		if err := s.machine.Event(context.Background(), eventHide); err != nil {
			s.logger.Warn("FSM: hide rejected", zap.Error(err))
		}
	}
}

func (s *Scheduler) scheduleAdvanceLocked() {
	if s.closed {
		return
	}
	s.stopAdvanceLocked()
	var t *clock.Timer
	t = s.clock.AfterFunc(s.cfg.Grace, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.advance != t {
			return
		}
		s.advance = nil
		s.advanceLocked()
	})
	s.advance = t
}

func (s *Scheduler) stopAdvanceLocked() {
	if s.advance != nil {
		s.advance.Stop()
		s.advance = nil
	}
}

func (s *Scheduler) queueChangedLocked() {
	n := s.queue.Len()
	metrics.QueueLength.Set(float64(n))
	s.paint(func() { s.surface.QueueSize(n) })
}

// refreshScreensaverLocked shows the screensaver only when nothing is on
// screen and nothing is waiting.
func (s *Scheduler) refreshScreensaverLocked() {
	want := s.session == nil && s.queue.Len() == 0 && s.advance == nil
	if want == s.screensaver {
		return
	}
	s.screensaver = want
	bg := surface.ScreensaverBackground(s.settings.Color)
	s.paint(func() { s.surface.Screensaver(want, bg) })
}

// paint calls into the surface, logging instead of propagating a panic.
func (s *Scheduler) paint(fn func()) {
	var pc panics.Catcher
	pc.Try(fn)
	if r := pc.Recovered(); r != nil {
		s.logger.Error("surface fault", zap.Error(r.AsError()))
	}
}
