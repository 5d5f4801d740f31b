// Package layout picks the font size and line wrap a code is drawn with.
package layout

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

const (
	MaxFontSize = 40 // vw
	MinFontSize = 1
	MinWrap     = 5
	MaxWrap     = 50

	WidthRatio  = 0.85
	HeightRatio = 0.80

	// lineHeight and the glyph advances are in em.
	lineHeight    = 1.2
	narrowAdvance = 0.6
	wideAdvance   = 1.0

	// Pure numeric codes up to this length always stay on one line.
	unwrappedDigits = 8
)

type Viewport struct {
	Width  float64 `json:"width" mapstructure:"width"`
	Height float64 `json:"height" mapstructure:"height"`
}

type Layout struct {
	FontSize int      `json:"font_size"`
	Wrap     int      `json:"wrap"`
	Lines    []string `json:"lines"`
	Overflow bool     `json:"overflow"`
}

func (l Layout) Text() string { return strings.Join(l.Lines, "\n") }

// Fit searches font sizes from MaxFontSize down and, for each, wrap widths
// from MinWrap up, returning the first combination whose block fits inside
// the viewport margins. When nothing fits it falls back to the smallest
// font and widest wrap and marks the layout as overflowing.
func Fit(code string, vp Viewport) Layout {
	for font := MaxFontSize; font >= MinFontSize; font-- {
		if l, ok := fitAt(code, font, vp); ok {
			return l
		}
	}
	return fallback(code)
}

// FitFixed keeps the operator's font size and only searches the wrap.
func FitFixed(code string, font int, vp Viewport) Layout {
	if font < MinFontSize || font > MaxFontSize {
		return Fit(code, vp)
	}
	if l, ok := fitAt(code, font, vp); ok {
		return l
	}
	return Layout{FontSize: font, Wrap: MaxWrap, Lines: Wrap(code, MaxWrap), Overflow: true}
}

func fitAt(code string, font int, vp Viewport) (Layout, bool) {
	for wrap := MinWrap; wrap <= MaxWrap; wrap++ {
		lines := Wrap(code, wrap)
		if fits(lines, font, vp) {
			return Layout{FontSize: font, Wrap: wrap, Lines: lines}, true
		}
		if !wraps(code) {
			// wrap has no effect on this code
			break
		}
	}
	return Layout{}, false
}

func fallback(code string) Layout {
	return Layout{FontSize: MinFontSize, Wrap: MaxWrap, Lines: Wrap(code, MaxWrap), Overflow: true}
}

func fits(lines []string, font int, vp Viewport) bool {
	px := float64(font) / 100 * vp.Width
	var widest float64
	for _, ln := range lines {
		widest = max(widest, Measure(ln))
	}
	w := widest * px
	h := float64(len(lines)) * lineHeight * px
	return w <= vp.Width*WidthRatio && h <= vp.Height*HeightRatio
}

// Measure returns the advance of s in em. East Asian wide and fullwidth
// runes take a full em, everything else a narrow cell.
func Measure(s string) float64 {
	var em float64
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			em += wideAdvance
		default:
			em += narrowAdvance
		}
	}
	return em
}

// Wrap breaks code into lines of at most n runes. Short pure numeric codes
// are never broken.
func Wrap(code string, n int) []string {
	if !wraps(code) || n <= 0 {
		return []string{code}
	}
	runes := []rune(code)
	if len(runes) <= n {
		return []string{code}
	}
	var lines []string
	for len(runes) > n {
		lines = append(lines, string(runes[:n]))
		runes = runes[n:]
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return lines
}

func wraps(code string) bool {
	n := 0
	for _, r := range code {
		if !unicode.IsDigit(r) {
			return true
		}
		n++
	}
	return n > unwrappedDigits
}
