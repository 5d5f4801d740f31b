package layout

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hd = Viewport{Width: 1920, Height: 1080}

func TestWrap(t *testing.T) {
	assert.Equal(t, []string{"12345678"}, Wrap("12345678", 5))
	assert.Equal(t, []string{"12345", "6789"}, Wrap("123456789", 5))
	assert.Equal(t, []string{"AB12C", "D"}, Wrap("AB12CD", 5))
	assert.Equal(t, []string{"短码"}, Wrap("短码", 5))
	assert.Equal(t, []string{"验证码验证", "码"}, Wrap("验证码验证码", 5))
}

func TestMeasure(t *testing.T) {
	assert.InDelta(t, 2.4, Measure("ABCD"), 1e-9)
	assert.InDelta(t, 2.0, Measure("验证"), 1e-9)
}

func TestFitShortCode(t *testing.T) {
	l := Fit("4829", hd)
	require.False(t, l.Overflow)
	// 4 narrow glyphs: 2.4em * font% * 1920 <= 0.85 * 1920 gives font <= 35.
	assert.Equal(t, 35, l.FontSize)
	assert.Equal(t, []string{"4829"}, l.Lines)
}

func TestFitPicksLargestFont(t *testing.T) {
	for _, code := range []string{"12", "1234", "12345678", "ABCDEFGHIJKL", strings.Repeat("Z", 40)} {
		l := Fit(code, hd)
		require.False(t, l.Overflow, code)
		assert.True(t, fits(l.Lines, l.FontSize, hd), code)
		if l.FontSize < MaxFontSize {
			_, ok := fitAt(code, l.FontSize+1, hd)
			assert.False(t, ok, "a larger font would have fit %q", code)
		}
	}
}

func TestFitOverflowFallsBack(t *testing.T) {
	tiny := Viewport{Width: 10, Height: 1}
	l := Fit(strings.Repeat("W", 500), tiny)
	assert.True(t, l.Overflow)
	assert.Equal(t, MinFontSize, l.FontSize)
	assert.Equal(t, MaxWrap, l.Wrap)
	assert.Len(t, l.Lines, 10)
}

func TestFitFixed(t *testing.T) {
	l := FitFixed("ABCDEFGHIJKL", 10, hd)
	assert.Equal(t, 10, l.FontSize)
	assert.False(t, l.Overflow)

	l = FitFixed("ABCD", 0, hd)
	assert.Equal(t, Fit("ABCD", hd), l)
}
