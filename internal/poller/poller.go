// Package poller pulls new codes from the message store and hands them to
// the display scheduler.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/balaji-balu/codeboard/internal/advisory"
	"github.com/balaji-balu/codeboard/internal/metrics"
	"github.com/balaji-balu/codeboard/internal/queue"
	"github.com/balaji-balu/codeboard/pkg/model"
)

// Source is the store as seen by the poller.
type Source interface {
	Poll(ctx context.Context, sinceID int64) (model.PollResponse, error)
	LastID(ctx context.Context) (int64, error)
}

// Sink receives fresh codes.
type Sink interface {
	Enqueue(code string) queue.Result
}

type Advisor interface {
	Raise(reason advisory.Reason, message string) bool
	Retract(reason advisory.Reason)
}

type Config struct {
	Interval         time.Duration
	Timeout          time.Duration
	HistorySize      int
	HistoryEvict     int
	FailureThreshold int
	InitBackoff      time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:         3 * time.Second,
		Timeout:          10 * time.Second,
		HistorySize:      100,
		HistoryEvict:     20,
		FailureThreshold: 10,
		InitBackoff:      500 * time.Millisecond,
	}
}

type Poller struct {
	cfg     Config
	source  Source
	sink    Sink
	advisor Advisor
	clock   clock.Clock
	logger  *zap.Logger

	inFlight atomic.Bool

	mu          sync.Mutex
	watermark   int64
	ready       bool
	history     *lru.Cache[string, struct{}]
	failures    int
	lastSuccess time.Time
}

type Option func(*Poller)

func WithClock(c clock.Clock) Option {
	return func(p *Poller) { p.clock = c }
}

func New(cfg Config, source Source, sink Sink, advisor Advisor, logger *zap.Logger, opts ...Option) (*Poller, error) {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.InitBackoff <= 0 {
		cfg.InitBackoff = def.InitBackoff
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.HistoryEvict <= 0 || cfg.HistoryEvict > cfg.HistorySize {
		cfg.HistoryEvict = def.HistoryEvict
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	// one spare slot so the cache never evicts on its own; trimming is
	// done in batches by remember.
	history, err := lru.New[string, struct{}](cfg.HistorySize + 1)
	if err != nil {
		return nil, err
	}
	p := &Poller{
		cfg:     cfg,
		source:  source,
		sink:    sink,
		advisor: advisor,
		clock:   clock.New(),
		logger:  logger.Named("poller"),
		history: history,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Init loads the store's current high-water id so that codes already in the
// store are not replayed. It retries until it succeeds or ctx ends. Failed
// attempts count as failed polls.
func (p *Poller) Init(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitBackoff
	b.MaxInterval = 30 * time.Second

	id, err := backoff.Retry(ctx, func() (int64, error) {
		reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
		id, err := p.source.LastID(reqCtx)
		if err != nil && ctx.Err() == nil {
			p.failed(err)
		}
		return id, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.logger.Warn("watermark init failed", zap.Error(err), zap.Duration("retry_in", next))
		}),
	)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.watermark = id
	p.ready = true
	p.failures = 0
	p.lastSuccess = p.clock.Now()
	p.mu.Unlock()
	metrics.Watermark.Set(float64(id))
	if p.advisor != nil {
		p.advisor.Retract(advisory.PollFailures)
	}
	p.logger.Info("watermark initialised", zap.Int64("last_id", id))
	return nil
}

// Run initialises the watermark and then polls every Interval until ctx is
// cancelled.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.Init(ctx); err != nil {
		return err
	}

	var wg conc.WaitGroup
	defer wg.Wait()

	tick := p.clock.Ticker(p.cfg.Interval)
	defer tick.Stop()

	p.trigger(ctx, &wg)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			p.trigger(ctx, &wg)
		}
	}
}

func (p *Poller) trigger(ctx context.Context, wg *conc.WaitGroup) {
	if !p.inFlight.CompareAndSwap(false, true) {
		metrics.Polls.WithLabelValues("skipped").Inc()
		return
	}
	wg.Go(func() {
		defer p.inFlight.Store(false)
		_ = p.poll(ctx)
	})
}

// PollOnce runs a single poll unless one is already in flight, in which
// case it returns false without doing anything.
func (p *Poller) PollOnce(ctx context.Context) (bool, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return false, nil
	}
	defer p.inFlight.Store(false)
	return true, p.poll(ctx)
}

func (p *Poller) poll(ctx context.Context) error {
	ctx, span := otel.Tracer("codeboard/poller").Start(ctx, "poller.poll")
	defer span.End()

	p.mu.Lock()
	since := p.watermark
	p.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	start := p.clock.Now()
	resp, err := p.source.Poll(reqCtx, since)
	metrics.PollDuration.Observe(p.clock.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "poll failed")
		p.failed(err)
		return err
	}

	p.accept(resp.Messages)
	p.mu.Lock()
	wm := p.watermark
	p.mu.Unlock()
	span.SetAttributes(
		attribute.Int("batch.size", len(resp.Messages)),
		attribute.Int64("watermark", wm),
	)
	return nil
}

func (p *Poller) accept(batch []model.Message) {
	fresh := make([]string, 0, len(batch))

	p.mu.Lock()
	high := p.watermark
	for _, m := range batch {
		if m.ID > high {
			high = m.ID
		}
		if m.Blank() {
			metrics.MessagesDropped.WithLabelValues("blank").Inc()
			continue
		}
		key := m.Key()
		if p.history.Contains(key) {
			metrics.MessagesDropped.WithLabelValues("duplicate").Inc()
			p.logger.Debug("duplicate delivery dropped", zap.String("key", key))
			continue
		}
		p.rememberLocked(key)
		fresh = append(fresh, m.Code)
	}
	p.watermark = high
	p.failures = 0
	p.lastSuccess = p.clock.Now()
	p.mu.Unlock()

	metrics.Polls.WithLabelValues("ok").Inc()
	metrics.Watermark.Set(float64(high))
	if p.advisor != nil {
		p.advisor.Retract(advisory.PollFailures)
	}

	// Enqueue takes the scheduler lock; do it outside ours.
	for _, code := range fresh {
		res := p.sink.Enqueue(code)
		if !res.Enqueued {
			p.logger.Debug("code not queued", zap.String("code", code), zap.String("reason", string(res.Reason)))
		}
	}
}

func (p *Poller) rememberLocked(key string) {
	p.history.Add(key, struct{}{})
	if p.history.Len() <= p.cfg.HistorySize {
		return
	}
	for i := 0; i < p.cfg.HistoryEvict; i++ {
		p.history.RemoveOldest()
	}
}

func (p *Poller) failed(err error) {
	p.mu.Lock()
	p.failures++
	n := p.failures
	p.mu.Unlock()

	metrics.Polls.WithLabelValues("failed").Inc()
	p.logger.Warn("poll failed", zap.Error(err), zap.Int("consecutive", n))
	if n >= p.cfg.FailureThreshold && p.advisor != nil {
		if p.advisor.Raise(advisory.PollFailures, "Connection to the code feed keeps failing. Reload the page?") {
			p.logger.Error("poll failure threshold reached", zap.Int("consecutive", n))
		}
	}
}

func (p *Poller) Watermark() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watermark
}

// LastSuccess is the time of the last successful poll (or watermark init).
// Zero until the first one.
func (p *Poller) LastSuccess() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSuccess
}

func (p *Poller) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

func (p *Poller) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// HistoryLen is the number of delivery keys remembered.
func (p *Poller) HistoryLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.history.Len()
}
