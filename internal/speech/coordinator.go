// Package speech narrates codes through a pluggable engine, one utterance
// at a time.
package speech

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

// Callbacks are invoked from the narration goroutine. None of them fire
// for a narration that was cancelled.
type Callbacks struct {
	OnStart func()
	OnEnd   func()
	OnError func(error)
}

type Coordinator struct {
	engine    Engine
	transform Transform
	logger    *zap.Logger

	mu       sync.Mutex
	seq      uint64
	cancel   context.CancelFunc
	speaking bool
	rate     float64
}

type Option func(*Coordinator)

func WithTransform(t Transform) Option {
	return func(c *Coordinator) {
		if t != nil {
			c.transform = t
		}
	}
}

func WithRate(rate float64) Option {
	return func(c *Coordinator) { c.rate = rate }
}

func NewCoordinator(engine Engine, logger *zap.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		engine:    engine,
		transform: SafeText,
		logger:    logger.Named("speech"),
		rate:      1.0,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Coordinator) SetRate(rate float64) {
	c.mu.Lock()
	c.rate = rate
	c.mu.Unlock()
}

// Narrate starts speaking code and returns immediately. Any narration
// already running is cancelled first. The returned func cancels this
// narration only.
func (c *Coordinator) Narrate(code string, cb Callbacks) (cancel func()) {
	return c.start(c.transform(code), cb)
}

// Announce speaks a plain sentence, such as a settings confirmation.
func (c *Coordinator) Announce(text string) {
	c.start(text, Callbacks{})
}

func (c *Coordinator) start(text string, cb Callbacks) func() {
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.seq++
	seq := c.seq
	c.cancel = cancel
	c.speaking = true
	rate := c.rate
	c.mu.Unlock()

	go c.run(ctx, seq, text, rate, cb)

	return func() { c.cancelSeq(seq) }
}

func (c *Coordinator) run(ctx context.Context, seq uint64, text string, rate float64, cb Callbacks) {
	defer c.finish(seq)

	if ctx.Err() != nil {
		return
	}
	if cb.OnStart != nil {
		cb.OnStart()
	}

	var err error
	var pc panics.Catcher
	pc.Try(func() { err = c.engine.Speak(ctx, text, rate) })
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}

	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.logger.Warn("narration fault", zap.Error(err))
		if cb.OnError != nil {
			cb.OnError(err)
		}
		return
	}
	if cb.OnEnd != nil {
		cb.OnEnd()
	}
}

func (c *Coordinator) finish(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq != seq {
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.speaking = false
}

func (c *Coordinator) cancelSeq(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq != seq || c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
	c.speaking = false
}

// Cancel stops whatever is being spoken.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.speaking = false
}

func (c *Coordinator) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}
