// Package health keeps per-endpoint liveness records for the status line and
// watches the poller for a stalled feed. It never touches the message path.
package health

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/balaji-balu/codeboard/internal/advisory"
	"github.com/balaji-balu/codeboard/internal/metrics"
	"github.com/balaji-balu/codeboard/pkg/model"
)

const LocalID = "local"

type Config struct {
	BaseInterval time.Duration
	MaxInterval  time.Duration
	LocalTimeout time.Duration
	PeerTimeout  time.Duration
	StaleCheck   time.Duration
	StaleAfter   time.Duration
	PruneAfter   time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseInterval: 60 * time.Second,
		MaxInterval:  300 * time.Second,
		LocalTimeout: 5 * time.Second,
		PeerTimeout:  8 * time.Second,
		StaleCheck:   30 * time.Second,
		StaleAfter:   60 * time.Second,
		PruneAfter:   time.Hour,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	fill := func(v *time.Duration, d time.Duration) {
		if *v <= 0 {
			*v = d
		}
	}
	fill(&c.BaseInterval, def.BaseInterval)
	fill(&c.MaxInterval, def.MaxInterval)
	fill(&c.LocalTimeout, def.LocalTimeout)
	fill(&c.PeerTimeout, def.PeerTimeout)
	fill(&c.StaleCheck, def.StaleCheck)
	fill(&c.StaleAfter, def.StaleAfter)
	fill(&c.PruneAfter, def.PruneAfter)
	if c.MaxInterval < c.BaseInterval {
		c.MaxInterval = c.BaseInterval
	}
	return c
}

// Liveness reports when the feed last answered.
type Liveness interface {
	LastSuccess() time.Time
}

type Advisor interface {
	Raise(reason advisory.Reason, message string) bool
	Retract(reason advisory.Reason)
}

type target struct {
	id      string
	local   bool
	timeout time.Duration
	prober  Prober
}

type Monitor struct {
	cfg      Config
	clock    clock.Clock
	logger   *zap.Logger
	liveness Liveness
	advisor  Advisor

	targets []target

	mu        sync.Mutex
	records   map[string]*model.NodeHealthRecord
	stale     bool
	localDown bool
	advised   bool
	listeners []func(model.HealthSummary)
}

type Option func(*Monitor)

func WithClock(c clock.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// New builds a Monitor. Zero fields of cfg take their DefaultConfig values.
func New(cfg Config, liveness Liveness, advisor Advisor, logger *zap.Logger, opts ...Option) *Monitor {
	cfg = cfg.withDefaults()
	m := &Monitor{
		cfg:      cfg,
		clock:    clock.New(),
		logger:   logger.Named("health"),
		liveness: liveness,
		advisor:  advisor,
		records:  make(map[string]*model.NodeHealthRecord),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// AddLocal registers the probe of the store this terminal polls.
func (m *Monitor) AddLocal(p Prober) {
	m.targets = append(m.targets, target{id: LocalID, local: true, timeout: m.cfg.LocalTimeout, prober: p})
}

func (m *Monitor) AddPeer(id string, p Prober) {
	m.targets = append(m.targets, target{id: id, timeout: m.cfg.PeerTimeout, prober: p})
}

// OnChange registers fn to receive the summary after every probe and
// staleness check.
func (m *Monitor) OnChange(fn func(model.HealthSummary)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Run probes every target on its own schedule and checks the feed for
// staleness until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	var wg conc.WaitGroup
	for _, t := range m.targets {
		wg.Go(func() { m.loop(ctx, t) })
	}
	wg.Go(func() {
		tick := m.clock.Ticker(m.cfg.StaleCheck)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				m.CheckStale()
				m.Prune()
			}
		}
	})
	wg.Wait()
	return nil
}

func (m *Monitor) loop(ctx context.Context, t target) {
	for {
		rec := m.probe(ctx, t)
		if ctx.Err() != nil {
			return
		}
		wait := Interval(rec.ConsecutiveFailures, m.cfg.BaseInterval, m.cfg.MaxInterval)
		select {
		case <-ctx.Done():
			return
		case <-m.clock.After(wait):
		}
	}
}

// CheckNow probes the target with the given id once, outside its schedule.
func (m *Monitor) CheckNow(ctx context.Context, id string) (model.NodeHealthRecord, bool) {
	for _, t := range m.targets {
		if t.id == id {
			return m.probe(ctx, t), true
		}
	}
	return model.NodeHealthRecord{}, false
}

func (m *Monitor) probe(ctx context.Context, t target) model.NodeHealthRecord {
	pctx, span := otel.Tracer("codeboard/health").Start(ctx, "health.probe",
		trace.WithAttributes(attribute.String("endpoint", t.id)))
	pctx, cancel := context.WithTimeout(pctx, t.timeout)
	start := m.clock.Now()
	err := t.prober.Probe(pctx)
	elapsed := m.clock.Since(start)
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "probe failed")
	}
	span.End()

	m.mu.Lock()
	rec, ok := m.records[t.id]
	if !ok {
		rec = &model.NodeHealthRecord{Endpoint: t.id}
		m.records[t.id] = rec
	}
	now := m.clock.Now()
	rec.LastCheckedAt = now
	switch {
	case err == nil:
		rec.Status = model.EndpointHealthy
		rec.ResponseTimeSeconds = elapsed.Seconds()
		rec.ConsecutiveFailures = 0
	case errors.Is(err, errUnhealthy):
		rec.Status = model.EndpointUnhealthy
		rec.ResponseTimeSeconds = 0
		rec.ConsecutiveFailures++
	default:
		rec.Status = model.EndpointUnreachable
		rec.ResponseTimeSeconds = 0
		rec.ConsecutiveFailures++
	}
	rec.NextCheckAt = now.Add(Interval(rec.ConsecutiveFailures, m.cfg.BaseInterval, m.cfg.MaxInterval))
	out := *rec

	var raise, retract bool
	if t.local {
		failing := errors.Is(err, errUnhealthy) || errors.Is(err, context.DeadlineExceeded)
		raise = failing && !m.advised
		retract = err == nil && m.advised
		if raise {
			m.advised = true
		}
		if retract {
			m.advised = false
		}
		m.localDown = err != nil
	}
	m.mu.Unlock()

	up := 0.0
	if err == nil {
		up = 1
	}
	metrics.EndpointUp.WithLabelValues(t.id).Set(up)
	metrics.EndpointFailures.WithLabelValues(t.id).Set(float64(out.ConsecutiveFailures))

	if err != nil && ctx.Err() == nil {
		m.logger.Warn("probe failed",
			zap.String("endpoint", t.id),
			zap.String("status", string(out.Status)),
			zap.Int("failures", out.ConsecutiveFailures),
			zap.Error(err))
	}
	if m.advisor != nil {
		if raise {
			m.advisor.Raise(advisory.LocalProbe, "The local code feed is not answering. Reload the page?")
		}
		if retract {
			m.advisor.Retract(advisory.LocalProbe)
		}
	}
	m.notify()
	return out
}

// CheckStale marks the connection stale when the feed has not answered for
// StaleAfter, and back to healthy once it does.
func (m *Monitor) CheckStale() model.ConnectionState {
	last := m.liveness.LastSuccess()
	if last.IsZero() {
		return m.Connection()
	}
	stale := m.clock.Since(last) > m.cfg.StaleAfter

	m.mu.Lock()
	changed := stale != m.stale
	m.stale = stale
	m.mu.Unlock()

	if changed {
		if stale {
			m.logger.Warn("feed stale", zap.Time("last_success", last))
			if m.advisor != nil {
				m.advisor.Raise(advisory.Stale, "No updates received for a while. Reload the page?")
			}
		} else {
			m.logger.Info("feed recovered")
			if m.advisor != nil {
				m.advisor.Retract(advisory.Stale)
			}
		}
	}
	m.notify()
	return m.Connection()
}

// Prune drops records that have not been checked for PruneAfter.
func (m *Monitor) Prune() int {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, rec := range m.records {
		if now.Sub(rec.LastCheckedAt) > m.cfg.PruneAfter {
			delete(m.records, id)
			metrics.EndpointUp.DeleteLabelValues(id)
			metrics.EndpointFailures.DeleteLabelValues(id)
			n++
		}
	}
	return n
}

func (m *Monitor) Connection() model.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectionLocked()
}

func (m *Monitor) connectionLocked() model.ConnectionState {
	switch {
	case m.stale:
		return model.ConnectionStale
	case m.localDown:
		return model.ConnectionError
	case m.liveness.LastSuccess().IsZero():
		return model.ConnectionUnknown
	}
	return model.ConnectionHealthy
}

func (m *Monitor) Record(id string) (model.NodeHealthRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return model.NodeHealthRecord{}, false
	}
	return *rec, true
}

func (m *Monitor) Summary() model.HealthSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summaryLocked()
}

func (m *Monitor) summaryLocked() model.HealthSummary {
	s := model.HealthSummary{
		Connection: m.connectionLocked(),
		LastPollAt: m.liveness.LastSuccess(),
		Records:    make([]model.NodeHealthRecord, 0, len(m.records)),
	}
	for _, rec := range m.records {
		s.Total++
		if rec.Status == model.EndpointHealthy {
			s.Healthy++
		}
		s.Records = append(s.Records, *rec)
	}
	sort.Slice(s.Records, func(i, j int) bool { return s.Records[i].Endpoint < s.Records[j].Endpoint })
	return s
}

func (m *Monitor) notify() {
	m.mu.Lock()
	s := m.summaryLocked()
	ls := append([]func(model.HealthSummary){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range ls {
		fn(s)
	}
}
