package advisory

import (
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRaiseIsIdempotent(t *testing.T) {
	b := New(clock.NewMock())
	var shown []*Advisory
	b.Subscribe(func(a *Advisory) { shown = append(shown, a) })

	assert.True(t, b.Raise(PollFailures, "reload"))
	assert.False(t, b.Raise(PollFailures, "reload"))
	require.Len(t, shown, 1)

	a, ok := b.Active()
	require.True(t, ok)
	assert.Equal(t, PollFailures, a.Reason)

	b.Retract(PollFailures)
	_, ok = b.Active()
	assert.False(t, ok)
	require.Len(t, shown, 2)
	assert.Nil(t, shown[1])

	assert.True(t, b.Raise(PollFailures, "reload"), "can prompt again after retract")
}

func TestSharedSurfaceShowsOnePrompt(t *testing.T) {
	b := New(clock.NewMock())
	notifications := 0
	b.Subscribe(func(*Advisory) { notifications++ })

	assert.True(t, b.Raise(PollFailures, "poll failing"))
	assert.False(t, b.Raise(Stale, "stale"))
	assert.Equal(t, 1, notifications)
	assert.True(t, b.Raised(Stale))

	b.Retract(PollFailures)
	a, ok := b.Active()
	require.True(t, ok)
	assert.Equal(t, Stale, a.Reason, "remaining reason takes over")

	b.Retract(Stale)
	_, ok = b.Active()
	assert.False(t, ok)
}

func TestRetractHiddenReason(t *testing.T) {
	b := New(clock.NewMock())
	b.Raise(Stale, "stale")
	b.Raise(LocalProbe, "local")

	b.Retract(LocalProbe)
	a, ok := b.Active()
	require.True(t, ok)
	assert.Equal(t, Stale, a.Reason)
	assert.False(t, b.Raised(LocalProbe))
}

func TestDismiss(t *testing.T) {
	b := New(clock.NewMock())
	b.Raise(Stale, "stale")
	b.Dismiss()

	_, ok := b.Active()
	assert.False(t, ok)
	assert.False(t, b.Raise(PollFailures, "poll"), "dismissed prompt stays hidden")

	b.Retract(Stale)
	b.Retract(PollFailures)
	assert.True(t, b.Raise(Stale, "stale again"))
}
