package display

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/balaji-balu/codeboard/internal/advisory"
	"github.com/balaji-balu/codeboard/internal/queue"
	"github.com/balaji-balu/codeboard/internal/speech"
	"github.com/balaji-balu/codeboard/internal/surface"
	"github.com/balaji-balu/codeboard/pkg/model"
)

const tick = 5 * time.Millisecond

type event struct {
	kind string
	code string
	n    int
	at   time.Time
}

type recorder struct {
	mu      sync.Mutex
	events  []event
	panicOn string
}

func (r *recorder) add(e event) {
	e.at = time.Now()
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) ShowCode(f surface.Frame) {
	if r.panicOn != "" && f.Code == r.panicOn {
		panic("cannot render " + f.Code)
	}
	r.add(event{kind: "show", code: f.Code})
}
func (r *recorder) HideCode()                     { r.add(event{kind: "hide"}) }
func (r *recorder) Countdown(n int)               { r.add(event{kind: "countdown", n: n}) }
func (r *recorder) Speaking(bool)                 {}
func (r *recorder) QueueSize(int)                 {}
func (r *recorder) Advisory(*advisory.Advisory)   {}
func (r *recorder) Status(surface.Status)         {}
func (r *recorder) Screensaver(on bool, _ string) {
	n := 0
	if on {
		n = 1
	}
	r.add(event{kind: "screensaver", n: n})
}

func (r *recorder) find(kind string, match func(event) bool) (event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.kind == kind && (match == nil || match(e)) {
			return e, true
		}
	}
	return event{}, false
}

func (r *recorder) countdowns() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, e := range r.events {
		if e.kind == "countdown" {
			out = append(out, e.n)
		}
	}
	return out
}

func (r *recorder) shown() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.kind == "show" {
			out = append(out, e.code)
		}
	}
	return out
}

// manualNarrator finishes a narration only when told to.
type manualNarrator struct {
	mu      sync.Mutex
	pending []speech.Callbacks
	cancels atomic.Int32
}

func (m *manualNarrator) Narrate(_ string, cb speech.Callbacks) func() {
	m.mu.Lock()
	m.pending = append(m.pending, cb)
	m.mu.Unlock()
	go func() {
		if cb.OnStart != nil {
			cb.OnStart()
		}
	}()
	return func() { m.cancels.Add(1) }
}

func (m *manualNarrator) SetRate(float64) {}
func (m *manualNarrator) Announce(string) {}

func (m *manualNarrator) finish(err error) {
	m.mu.Lock()
	cb := m.pending[len(m.pending)-1]
	m.mu.Unlock()
	if err != nil {
		cb.OnError(err)
		return
	}
	cb.OnEnd()
}

func (m *manualNarrator) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

type fakeStore struct{ clears atomic.Int32 }

func (f *fakeStore) Clear(context.Context) error {
	f.clears.Add(1)
	return nil
}

// noSafety pushes the forced advance out of the way of narration tests.
func noSafety(c *Config) { c.SafetyMargin = 1000 }

func settings(seconds int, narration bool) model.Settings {
	s := model.DefaultSettings()
	s.DisplaySeconds = seconds
	s.NarrationEnabled = narration
	return s
}

func newTestScheduler(t *testing.T, r *recorder, n Narrator, st Clearer, set model.Settings, tweaks ...func(*Config)) *Scheduler {
	t.Helper()
	cfg := Config{Tick: tick, Grace: time.Millisecond}
	for _, tw := range tweaks {
		tw(&cfg)
	}
	s := New(cfg, r, n, st, zap.NewNop(), WithSettings(set))
	t.Cleanup(s.Close)
	return s
}

func TestNarrationDisabledAdvancesAtDuration(t *testing.T) {
	r := &recorder{}
	s := newTestScheduler(t, r, nil, nil, settings(10, false))

	start := time.Now()
	require.True(t, s.Enqueue("482913").Enqueued)
	assert.Equal(t, StateShowing, s.State())

	require.Eventually(t, func() bool { _, ok := r.find("hide", nil); return ok }, time.Second, time.Millisecond)
	hide, _ := r.find("hide", nil)
	assert.GreaterOrEqual(t, hide.at.Sub(start), 10*tick)

	// one tick per second and the hide in the same step as zero: no
	// lingering tick after the duration.
	assert.Equal(t, []int{10, 9, 8, 7, 6, 5, 4, 3, 2, 1, 0}, r.countdowns())
	zero, _ := r.find("countdown", func(e event) bool { return e.n == 0 })
	assert.Less(t, hide.at.Sub(zero.at), tick)
	assert.Less(t, hide.at.Sub(start), 30*tick)
	_, sentinel := r.find("countdown", func(e event) bool { return e.n == model.Narrating })
	assert.False(t, sentinel, "no narrating sentinel without narration")
}

func TestCountdownWaitsForNarration(t *testing.T) {
	r := &recorder{}
	n := &manualNarrator{}
	s := newTestScheduler(t, r, n, nil, settings(10, true), noSafety)

	require.True(t, s.Enqueue("A123").Enqueued)

	require.Eventually(t, func() bool {
		sess, ok := s.Session()
		return ok && sess.RemainingSeconds == model.Narrating
	}, time.Second, time.Millisecond)
	_, hidden := r.find("hide", nil)
	assert.False(t, hidden, "must not advance while narrating")

	n.finish(nil)
	require.Eventually(t, func() bool { _, ok := s.Session(); return !ok }, time.Second, time.Millisecond)
	assert.Equal(t, StateIdle, s.State())
}

func TestEarlyNarrationStillWaitsForCountdown(t *testing.T) {
	r := &recorder{}
	n := &manualNarrator{}
	s := newTestScheduler(t, r, n, nil, settings(10, true), noSafety)

	start := time.Now()
	s.Enqueue("A123")
	require.Eventually(t, func() bool { return n.count() == 1 }, time.Second, time.Millisecond)
	n.finish(nil)

	require.Eventually(t, func() bool { _, ok := r.find("hide", nil); return ok }, time.Second, time.Millisecond)
	hide, _ := r.find("hide", nil)
	assert.GreaterOrEqual(t, hide.at.Sub(start), 10*tick)
}

func TestNarrationFaultCountsAsCompletion(t *testing.T) {
	r := &recorder{}
	n := &manualNarrator{}
	s := newTestScheduler(t, r, n, nil, settings(10, true), noSafety)

	s.Enqueue("A123")
	require.Eventually(t, func() bool {
		sess, ok := s.Session()
		return ok && sess.RemainingSeconds == model.Narrating
	}, time.Second, time.Millisecond)

	n.finish(errors.New("engine crashed"))
	require.Eventually(t, func() bool { _, ok := s.Session(); return !ok }, time.Second, time.Millisecond)
}

func TestSafetyTimeoutForcesAdvance(t *testing.T) {
	r := &recorder{}
	n := &manualNarrator{}
	s := newTestScheduler(t, r, n, nil, settings(10, true))

	start := time.Now()
	s.Enqueue("STUCK1")
	s.Enqueue("NEXT22")

	require.Eventually(t, func() bool { return len(r.shown()) == 2 }, 2*time.Second, time.Millisecond)
	hide, ok := r.find("hide", nil)
	require.True(t, ok)
	assert.GreaterOrEqual(t, hide.at.Sub(start), 15*tick)
	assert.Equal(t, []string{"STUCK1", "NEXT22"}, r.shown())
	assert.GreaterOrEqual(t, n.cancels.Load(), int32(1), "stuck narration is cancelled")
}

func TestQueueDrainsInOrder(t *testing.T) {
	r := &recorder{}
	s := newTestScheduler(t, r, nil, nil, settings(10, false))

	for _, c := range []string{"111111", "AAAAAA", "ZX9-42"} {
		require.True(t, s.Enqueue(c).Enqueued, c)
	}
	assert.Equal(t, 2, s.QueueLen())

	require.Eventually(t, func() bool { return len(r.shown()) == 3 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, []string{"111111", "AAAAAA", "ZX9-42"}, r.shown())
	require.Eventually(t, s.ScreensaverOn, time.Second, time.Millisecond)
}

func TestEnqueueDedupsAgainstShowing(t *testing.T) {
	r := &recorder{}
	s := newTestScheduler(t, r, nil, nil, settings(30, false))

	require.True(t, s.Enqueue("839201").Enqueued)
	res := s.Enqueue("839201")
	assert.Equal(t, queue.DuplicateCurrent, res.Reason)
	res = s.Enqueue(" ")
	assert.Equal(t, queue.Blank, res.Reason)
	assert.Equal(t, 0, s.QueueLen())
}

func TestSkip(t *testing.T) {
	r := &recorder{}
	n := &manualNarrator{}
	s := newTestScheduler(t, r, n, nil, settings(30, true))

	assert.False(t, s.Skip(), "nothing to skip")

	s.Enqueue("FIRST1")
	s.Enqueue("SECOND")
	require.True(t, s.Skip())

	_, showing := s.Session()
	assert.False(t, showing)
	assert.Equal(t, StateIdle, s.State())
	assert.GreaterOrEqual(t, n.cancels.Load(), int32(1))

	require.Eventually(t, func() bool {
		sess, ok := s.Session()
		return ok && sess.Code == "SECOND"
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"FIRST1", "SECOND"}, r.shown(), "skipped code is not requeued")
}

func TestClear(t *testing.T) {
	r := &recorder{}
	st := &fakeStore{}
	s := newTestScheduler(t, r, nil, st, settings(30, false))

	s.Enqueue("111111")
	s.Enqueue("AAAAAA")
	s.Enqueue("ZZZZZZ")

	require.NoError(t, s.Clear(context.Background()))
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, 0, s.QueueLen())
	_, showing := s.Session()
	assert.False(t, showing)
	assert.True(t, s.ScreensaverOn())
	assert.Equal(t, int32(1), st.clears.Load())

	time.Sleep(20 * tick)
	assert.Equal(t, []string{"111111"}, r.shown())
}

func TestFaultyCodeDoesNotStallQueue(t *testing.T) {
	r := &recorder{panicOn: "BADBAD"}
	s := newTestScheduler(t, r, nil, nil, settings(10, false))

	s.Enqueue("BADBAD")
	s.Enqueue("GOOD42")

	require.Eventually(t, func() bool {
		sess, ok := s.Session()
		return ok && sess.Code == "GOOD42"
	}, time.Second, time.Millisecond)
}

func TestKick(t *testing.T) {
	r := &recorder{}
	s := newTestScheduler(t, r, nil, nil, settings(10, false))
	assert.False(t, s.Kick(), "empty queue")

	// Load the queue behind the scheduler's back, as if an advance was lost.
	s.mu.Lock()
	s.queue.TryEnqueue("LOST01")
	s.mu.Unlock()

	assert.True(t, s.Kick())
	sess, ok := s.Session()
	require.True(t, ok)
	assert.Equal(t, "LOST01", sess.Code)
	assert.False(t, s.Kick(), "already showing")
}

func TestUpdateSettings(t *testing.T) {
	r := &recorder{}
	n := &manualNarrator{}
	s := newTestScheduler(t, r, n, nil, settings(30, true))

	bad := settings(5, true)
	assert.ErrorIs(t, s.UpdateSettings(bad), model.ErrInvalidSettings)

	s.Enqueue("A123")
	require.Eventually(t, func() bool { return n.count() == 1 }, time.Second, time.Millisecond)

	// Turning narration off mid-cycle releases the narration half of the latch.
	off := settings(10, false)
	require.NoError(t, s.UpdateSettings(off))
	assert.Equal(t, off, s.Settings())
	require.Eventually(t, func() bool { _, ok := s.Session(); return !ok }, 2*time.Second, time.Millisecond)
}

func TestRunStopsOnCancel(t *testing.T) {
	r := &recorder{}
	s := New(Config{Tick: tick, Grace: time.Millisecond, Watchdog: time.Millisecond, ScreensaverCheck: time.Millisecond},
		r, nil, nil, zap.NewNop(), WithSettings(settings(10, false)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, s.ScreensaverOn, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, queue.Result{}, s.Enqueue("AFTER1"), "closed scheduler ignores codes")
}
