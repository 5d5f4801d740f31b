// Package advisory is the single place reload suggestions are shown from.
// Several monitors may ask for one at the same time; the viewer only ever
// sees one prompt.
package advisory

import (
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/balaji-balu/codeboard/internal/metrics"
)

type Reason string

const (
	PollFailures Reason = "poll-failures"
	Stale        Reason = "stale"
	LocalProbe   Reason = "local-probe"
)

type Advisory struct {
	Reason   Reason    `json:"reason"`
	Message  string    `json:"message"`
	RaisedAt time.Time `json:"raised_at"`
}

// Listener receives the visible advisory after every change, nil once none
// is visible.
type Listener func(*Advisory)

type Board struct {
	clock clock.Clock

	mu        sync.Mutex
	raised    []Advisory
	visible   *Advisory
	dismissed bool
	listeners []Listener
}

func New(clk clock.Clock) *Board {
	if clk == nil {
		clk = clock.New()
	}
	return &Board{clock: clk}
}

func (b *Board) Subscribe(l Listener) {
	b.mu.Lock()
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()
}

// Raise records reason. It returns true only when this call made a prompt
// visible; raising a reason that is already up, or while another prompt is
// showing, does not prompt again.
func (b *Board) Raise(reason Reason, message string) bool {
	b.mu.Lock()
	if slices.ContainsFunc(b.raised, func(a Advisory) bool { return a.Reason == reason }) {
		b.mu.Unlock()
		return false
	}
	a := Advisory{Reason: reason, Message: message, RaisedAt: b.clock.Now()}
	b.raised = append(b.raised, a)
	metrics.AdvisoriesRaised.WithLabelValues(string(reason)).Inc()
	if b.visible != nil || b.dismissed {
		b.mu.Unlock()
		return false
	}
	b.visible = &a
	b.notifyLocked()
	return true
}

// Retract withdraws reason. If it was the visible prompt, the oldest
// remaining reason takes its place.
func (b *Board) Retract(reason Reason) {
	b.mu.Lock()
	i := slices.IndexFunc(b.raised, func(a Advisory) bool { return a.Reason == reason })
	if i < 0 {
		b.mu.Unlock()
		return
	}
	b.raised = slices.Delete(b.raised, i, i+1)
	if len(b.raised) == 0 {
		b.dismissed = false
	}
	if b.visible == nil || b.visible.Reason != reason {
		b.mu.Unlock()
		return
	}
	b.visible = nil
	if len(b.raised) > 0 && !b.dismissed {
		next := b.raised[0]
		b.visible = &next
	}
	b.notifyLocked()
}

// Dismiss hides the prompt until every current reason has been retracted.
func (b *Board) Dismiss() {
	b.mu.Lock()
	if b.visible == nil {
		b.mu.Unlock()
		return
	}
	b.visible = nil
	b.dismissed = true
	b.notifyLocked()
}

func (b *Board) Active() (Advisory, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.visible == nil {
		return Advisory{}, false
	}
	return *b.visible, true
}

func (b *Board) Raised(reason Reason) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.ContainsFunc(b.raised, func(a Advisory) bool { return a.Reason == reason })
}

// notifyLocked releases b.mu before calling listeners.
func (b *Board) notifyLocked() {
	var cur *Advisory
	if b.visible != nil {
		v := *b.visible
		cur = &v
	}
	ls := slices.Clone(b.listeners)
	b.mu.Unlock()
	for _, l := range ls {
		l(cur)
	}
}
