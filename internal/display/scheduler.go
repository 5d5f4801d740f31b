// Package display runs the display cycle: one code on screen at a time,
// held for its countdown and its narration, then the next from the queue.
package display

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/balaji-balu/codeboard/internal/layout"
	"github.com/balaji-balu/codeboard/internal/metrics"
	"github.com/balaji-balu/codeboard/internal/queue"
	"github.com/balaji-balu/codeboard/internal/speech"
	"github.com/balaji-balu/codeboard/internal/surface"
	"github.com/balaji-balu/codeboard/pkg/model"
)

// Narrator speaks codes. Narrate must return before invoking any callback.
type Narrator interface {
	Narrate(code string, cb speech.Callbacks) (cancel func())
	SetRate(rate float64)
	Announce(text string)
}

// Clearer empties the backing message store.
type Clearer interface {
	Clear(ctx context.Context) error
}

type Config struct {
	// Tick is one countdown second. Tests shrink it.
	Tick time.Duration
	// Grace separates hiding a code from dequeuing the next.
	Grace time.Duration
	// SafetyMargin is added to the display duration, in ticks, before a
	// cycle is forced to end.
	SafetyMargin     int
	Viewport         layout.Viewport
	Watchdog         time.Duration
	ScreensaverCheck time.Duration
}

func DefaultConfig() Config {
	return Config{
		Tick:             time.Second,
		Grace:            100 * time.Millisecond,
		SafetyMargin:     5,
		Viewport:         layout.Viewport{Width: 1920, Height: 1080},
		Watchdog:         10 * time.Second,
		ScreensaverCheck: 5 * time.Second,
	}
}

type session struct {
	code          string
	startedAt     time.Time
	remaining     int
	speaking      bool
	countdownDone bool
	narrationDone bool

	tick            *clock.Timer
	safety          *clock.Timer
	cancelNarration func()
}

type Scheduler struct {
	cfg      Config
	clock    clock.Clock
	logger   *zap.Logger
	surface  surface.Surface
	narrator Narrator
	store    Clearer

	mu          sync.Mutex
	machine     *fsm.FSM
	queue       *queue.Queue
	settings    model.Settings
	session     *session
	cycle       uint64
	advance     *clock.Timer
	screensaver bool
	closed      bool
}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithSettings(set model.Settings) Option {
	return func(s *Scheduler) { s.settings = set }
}

func WithQueue(q *queue.Queue) Option {
	return func(s *Scheduler) { s.queue = q }
}

// New builds a scheduler. narrator and store may be nil, which disables
// narration and the store reset respectively.
func New(cfg Config, surf surface.Surface, narrator Narrator, store Clearer, logger *zap.Logger, opts ...Option) *Scheduler {
	def := DefaultConfig()
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.Grace <= 0 {
		cfg.Grace = def.Grace
	}
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = def.SafetyMargin
	}
	if cfg.Viewport.Width <= 0 || cfg.Viewport.Height <= 0 {
		cfg.Viewport = def.Viewport
	}
	if cfg.Watchdog <= 0 {
		cfg.Watchdog = def.Watchdog
	}
	if cfg.ScreensaverCheck <= 0 {
		cfg.ScreensaverCheck = def.ScreensaverCheck
	}

	logger = logger.Named("display")
	s := &Scheduler{
		cfg:      cfg,
		clock:    clock.New(),
		logger:   logger,
		surface:  surf,
		narrator: narrator,
		store:    store,
		machine:  newMachine(logger),
		settings: model.DefaultSettings(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.queue == nil {
		s.queue = queue.New()
	}
	if narrator == nil {
		s.settings.NarrationEnabled = false
	}
	return s
}

// Run drives the watchdog and the screensaver check until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	watchdog := s.clock.Ticker(s.cfg.Watchdog)
	defer watchdog.Stop()
	saver := s.clock.Ticker(s.cfg.ScreensaverCheck)
	defer saver.Stop()

	s.logger.Info("display scheduler started",
		zap.Int("display_seconds", s.Settings().DisplaySeconds),
		zap.Duration("tick", s.cfg.Tick),
	)
	s.mu.Lock()
	s.refreshScreensaverLocked()
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			s.Close()
			s.logger.Info("display scheduler stopped")
			return nil
		case <-watchdog.C:
			s.Kick()
		case <-saver.C:
			s.mu.Lock()
			s.refreshScreensaverLocked()
			s.mu.Unlock()
		}
	}
}

// Enqueue offers a code for display. If nothing is on screen the cycle
// starts right away.
func (s *Scheduler) Enqueue(code string) queue.Result {
	code = strings.TrimSpace(code)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return queue.Result{}
	}

	res := s.queue.TryEnqueue(code)
	if !res.Enqueued {
		metrics.CodesRejected.WithLabelValues(string(res.Reason)).Inc()
		s.logger.Debug("code rejected", zap.String("code", code), zap.String("reason", string(res.Reason)))
		return res
	}
	s.logger.Info("code queued", zap.String("code", code), zap.Int("queue", s.queue.Len()))
	s.queueChangedLocked()

	if s.machine.Is(StateIdle) && s.advance == nil {
		s.advanceLocked()
	}
	return res
}

// Kick restarts queue processing if the scheduler is idle with work
// waiting. It is what the watchdog calls.
func (s *Scheduler) Kick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.machine.Is(StateIdle) || s.advance != nil || s.queue.Len() == 0 {
		return false
	}
	s.logger.Warn("watchdog found idle scheduler with queued codes", zap.Int("queue", s.queue.Len()))
	s.advanceLocked()
	return true
}

// Skip drops the code on screen. It reports whether anything was showing.
func (s *Scheduler) Skip() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return false
	}
	s.logger.Info("skip", zap.String("code", s.session.code))
	s.hideLocked()
	return true
}

// Clear empties the queue, ends any display cycle and resets the store.
// The local state is idle when the store call starts.
func (s *Scheduler) Clear(ctx context.Context) error {
	s.mu.Lock()
	dropped := s.queue.Len()
	s.queue.Reset()
	if s.session != nil {
		s.teardownLocked()
	}
	s.stopAdvanceLocked()
	s.queueChangedLocked()
	s.refreshScreensaverLocked()
	s.mu.Unlock()

	s.logger.Info("queue cleared", zap.Int("dropped", dropped))
	if s.store == nil {
		return nil
	}
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	return nil
}

// Close stops every timer and any narration. Later calls are no-ops.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.session != nil {
		s.teardownLocked()
	}
	s.stopAdvanceLocked()
	s.closed = true
}

func (s *Scheduler) UpdateSettings(set model.Settings) error {
	if err := set.Validate(); err != nil {
		return err
	}
	if s.narrator == nil {
		set.NarrationEnabled = false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.settings
	s.settings = set

	if s.narrator != nil && set.SpeechRate != old.SpeechRate {
		s.narrator.SetRate(set.SpeechRate)
	}
	if set.Color != old.Color && s.screensaver {
		s.paint(func() { s.surface.Screensaver(true, surface.ScreensaverBackground(set.Color)) })
	}
	sess := s.session
	switch {
	case old.NarrationEnabled && !set.NarrationEnabled && sess != nil && !sess.narrationDone:
		if sess.cancelNarration != nil {
			sess.cancelNarration()
		}
		s.narrationFinishedLocked(sess)
	case !old.NarrationEnabled && set.NarrationEnabled && sess == nil:
		s.narrator.Announce("narration on")
	}
	s.logger.Info("settings updated",
		zap.Int("display_seconds", set.DisplaySeconds),
		zap.Float64("speech_rate", set.SpeechRate),
		zap.Int("font_size", set.FontSize),
		zap.String("color", set.Color),
		zap.Bool("narration", set.NarrationEnabled),
	)
	return nil
}

func (s *Scheduler) Settings() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Scheduler) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Current()
}

func (s *Scheduler) Session() (model.DisplaySession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return model.DisplaySession{}, false
	}
	return model.DisplaySession{
		Code:             s.session.code,
		StartedAt:        s.session.startedAt,
		RemainingSeconds: s.session.remaining,
		Speaking:         s.session.speaking,
	}, true
}

func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

func (s *Scheduler) Queued() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Snapshot()
}

func (s *Scheduler) ScreensaverOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screensaver
}
