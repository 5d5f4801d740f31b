// Package terminal assembles a display terminal from its parts: store
// client, poller, scheduler, health monitor, surfaces and the control API.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/balaji-balu/codeboard/internal/advisory"
	"github.com/balaji-balu/codeboard/internal/api"
	"github.com/balaji-balu/codeboard/internal/config"
	"github.com/balaji-balu/codeboard/internal/display"
	"github.com/balaji-balu/codeboard/internal/health"
	"github.com/balaji-balu/codeboard/internal/layout"
	"github.com/balaji-balu/codeboard/internal/poller"
	"github.com/balaji-balu/codeboard/internal/queue"
	"github.com/balaji-balu/codeboard/internal/speech"
	"github.com/balaji-balu/codeboard/internal/storeclient"
	"github.com/balaji-balu/codeboard/internal/surface"
	"github.com/balaji-balu/codeboard/pkg/model"
)

type Terminal struct {
	ID     string
	cfg    *config.Config
	logger *zap.Logger

	board     *advisory.Board
	hub       *surface.Hub
	scheduler *display.Scheduler
	poller    *poller.Poller
	monitor   *health.Monitor
	server    *http.Server

	mu sync.Mutex
	ln net.Listener
}

type Option func(*options)

type options struct {
	clock  clock.Clock
	engine speech.Engine
	extra  []surface.Surface
}

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithEngine overrides the speech engine chosen by config.
func WithEngine(e speech.Engine) Option {
	return func(o *options) { o.engine = e }
}

// WithSurface adds a surface next to the log and websocket ones.
func WithSurface(s surface.Surface) Option {
	return func(o *options) { o.extra = append(o.extra, s) }
}

func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Terminal, error) {
	o := options{clock: clock.New()}
	for _, fn := range opts {
		fn(&o)
	}

	id := uuid.NewString()
	logger = logger.With(zap.String("terminal", id))

	engine := o.engine
	if engine == nil {
		engine = engineFromConfig(cfg)
	}
	transform, err := speech.TransformByName(cfg.Speech.Transform)
	if err != nil {
		return nil, err
	}
	narrator := speech.NewCoordinator(engine, logger,
		speech.WithTransform(transform),
		speech.WithRate(cfg.Speech.Rate),
	)

	client := storeclient.New(cfg.Store.URL, storeclient.WithHTTPClient(&http.Client{}))
	board := advisory.New(o.clock)
	hub := surface.NewHub(logger)
	surf := append(surface.Multi{surface.NewLog(logger), hub}, o.extra...)
	board.Subscribe(surf.Advisory)

	sched := display.New(display.Config{
		Tick:             cfg.Display.Tick,
		Grace:            cfg.Display.Grace,
		SafetyMargin:     cfg.Display.SafetyMargin,
		Viewport:         layout.Viewport{Width: cfg.Display.Viewport.Width, Height: cfg.Display.Viewport.Height},
		Watchdog:         cfg.Display.Watchdog,
		ScreensaverCheck: cfg.Display.ScreensaverCheck,
	}, surf, narrator, client, logger,
		display.WithClock(o.clock),
		display.WithSettings(cfg.Settings()),
		display.WithQueue(queue.New(queue.WithMaxLen(cfg.Queue.MaxLen))),
	)

	pl, err := poller.New(poller.Config{
		Interval:     cfg.Poller.Interval,
		Timeout:      cfg.Poller.Timeout,
		HistorySize:  cfg.Poller.HistorySize,
		HistoryEvict: cfg.Poller.HistoryEvict,
	}, client, sched, board, logger, poller.WithClock(o.clock))
	if err != nil {
		return nil, fmt.Errorf("poller: %w", err)
	}

	mon := health.New(health.Config{
		BaseInterval: cfg.Health.BaseInterval,
		MaxInterval:  cfg.Health.MaxInterval,
		LocalTimeout: cfg.Health.LocalTimeout,
		PeerTimeout:  cfg.Health.PeerTimeout,
		StaleCheck:   cfg.Health.StaleCheck,
		StaleAfter:   cfg.Health.StaleAfter,
		PruneAfter:   cfg.Health.PruneAfter,
	}, pl, board, logger, health.WithClock(o.clock))
	mon.AddLocal(health.LocalProbe(storeclient.New(cfg.Store.URL)))
	for _, p := range cfg.Health.Peers {
		mon.AddPeer(p.ID, health.PeerProbe(nil, p.URL))
	}
	mon.OnChange(func(s model.HealthSummary) {
		surf.Status(surface.Status{
			Connection: s.Connection,
			Healthy:    s.Healthy,
			Total:      s.Total,
			LastPollAt: s.LastPollAt,
		})
	})

	router := api.NewRouter(api.Deps{
		Display:    sched,
		Feed:       pl,
		Health:     mon,
		Advisories: board,
		WS:         hub,
	}, logger)

	return &Terminal{
		ID:        id,
		cfg:       cfg,
		logger:    logger,
		board:     board,
		hub:       hub,
		scheduler: sched,
		poller:    pl,
		monitor:   mon,
		server:    &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second},
	}, nil
}

func engineFromConfig(cfg *config.Config) speech.Engine {
	if cfg.Speech.Engine == "command" {
		return &speech.CommandEngine{Path: cfg.Speech.Command, Args: cfg.Speech.Args}
	}
	return &speech.SilentEngine{}
}

// Listen binds the control API address. Run calls it if needed; calling it
// first lets a caller learn the port of ":0".
func (t *Terminal) Listen() (net.Addr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln != nil {
		return t.ln.Addr(), nil
	}
	ln, err := net.Listen("tcp", t.cfg.API.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", t.cfg.API.Addr, err)
	}
	t.ln = ln
	return ln.Addr(), nil
}

// Run starts every loop and the control API, and blocks until ctx is
// cancelled or one of them fails.
func (t *Terminal) Run(ctx context.Context) error {
	addr, err := t.Listen()
	if err != nil {
		return err
	}
	t.logger.Info("terminal starting",
		zap.String("store", t.cfg.Store.URL),
		zap.String("api", addr.String()))

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(t.scheduler.Run)
	p.Go(func(ctx context.Context) error {
		err := t.poller.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	p.Go(t.monitor.Run)
	p.Go(func(ctx context.Context) error {
		if err := t.server.Serve(t.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		t.hub.Close()
		if err := t.server.Shutdown(shutdownCtx); err != nil {
			t.logger.Warn("error shutting down HTTP server", zap.Error(err))
		}
		return nil
	})

	err = p.Wait()
	t.logger.Info("terminal stopped")
	return err
}

func (t *Terminal) Scheduler() *display.Scheduler { return t.scheduler }

func (t *Terminal) Poller() *poller.Poller { return t.poller }

func (t *Terminal) Monitor() *health.Monitor { return t.monitor }

func (t *Terminal) Advisories() *advisory.Board { return t.board }
