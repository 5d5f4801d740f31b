// Package surface renders terminal state. The scheduler and the monitors
// push frames; a Surface decides how they reach a screen.
package surface

import (
	"strings"
	"time"

	"github.com/balaji-balu/codeboard/internal/advisory"
	"github.com/balaji-balu/codeboard/internal/layout"
	"github.com/balaji-balu/codeboard/pkg/model"
)

type Frame struct {
	Code     string        `json:"code"`
	Layout   layout.Layout `json:"layout"`
	Seconds  int           `json:"seconds"`
	Color    string        `json:"color"`
	Overflow bool          `json:"overflow"`
}

type Status struct {
	Connection model.ConnectionState `json:"connection"`
	Healthy    int                   `json:"healthy"`
	Total      int                   `json:"total"`
	LastPollAt time.Time             `json:"last_poll_at"`
}

// Surface methods must not block for long; they are called with the
// scheduler's cycle in progress.
type Surface interface {
	ShowCode(Frame)
	HideCode()
	Countdown(remaining int)
	Speaking(bool)
	QueueSize(int)
	Screensaver(on bool, background string)
	Advisory(*advisory.Advisory)
	Status(Status)
}

const defaultGradient = "linear-gradient(135deg, #1a2a6c, #b21f1f, #1a2a6c)"

var gradients = map[string]string{
	"#000000": "linear-gradient(135deg, #1a1a1a, #000000, #1a1a1a)",
	"#FF0000": "linear-gradient(135deg, #4a0000, #8b0000, #4a0000)",
	"#0000FF": "linear-gradient(135deg, #00004a, #00008b, #00004a)",
	"#00FF00": "linear-gradient(135deg, #004a00, #008b00, #004a00)",
	"#FFFF00": "linear-gradient(135deg, #4a4a00, #8b8b00, #4a4a00)",
	"#FF00FF": "linear-gradient(135deg, #4a004a, #8b008b, #4a004a)",
	"#00FFFF": "linear-gradient(135deg, #004a4a, #008b8b, #004a4a)",
	"#FFA500": "linear-gradient(135deg, #8b4500, #cc6600, #8b4500)",
	"#800080": "linear-gradient(135deg, #400040, #800080, #400040)",
	"#FFC0CB": "linear-gradient(135deg, #ff69b4, #ffc0cb, #ff69b4)",
	"#A52A2A": "linear-gradient(135deg, #521515, #a52a2a, #521515)",
	"#808080": "linear-gradient(135deg, #404040, #808080, #404040)",
}

// ScreensaverBackground maps the operator's text colour to the idle
// screen's background. Unknown colours get the default gradient.
func ScreensaverBackground(color string) string {
	if g, ok := gradients[strings.ToUpper(color)]; ok {
		return g
	}
	return defaultGradient
}

// Multi fans every call out to each surface in order.
type Multi []Surface

func (m Multi) ShowCode(f Frame) {
	for _, s := range m {
		s.ShowCode(f)
	}
}

func (m Multi) HideCode() {
	for _, s := range m {
		s.HideCode()
	}
}

func (m Multi) Countdown(n int) {
	for _, s := range m {
		s.Countdown(n)
	}
}

func (m Multi) Speaking(on bool) {
	for _, s := range m {
		s.Speaking(on)
	}
}

func (m Multi) QueueSize(n int) {
	for _, s := range m {
		s.QueueSize(n)
	}
}

func (m Multi) Screensaver(on bool, bg string) {
	for _, s := range m {
		s.Screensaver(on, bg)
	}
}

func (m Multi) Advisory(a *advisory.Advisory) {
	for _, s := range m {
		s.Advisory(a)
	}
}

func (m Multi) Status(st Status) {
	for _, s := range m {
		s.Status(st)
	}
}
