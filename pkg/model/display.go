package model

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Narrating is the countdown value shown once the timer has run out but
// narration of the code is still going.
const Narrating = -1

// DisplaySession is a read-only snapshot of the code on screen.
type DisplaySession struct {
	Code             string    `json:"code"`
	StartedAt        time.Time `json:"started_at"`
	RemainingSeconds int       `json:"remaining_seconds"`
	Speaking         bool      `json:"speaking"`
}

const (
	MinDisplaySeconds     = 10
	MaxDisplaySeconds     = 30
	DefaultDisplaySeconds = 20

	MinSpeechRate = 0.5
	MaxSpeechRate = 2.0

	MaxFontSize = 40
)

var ErrInvalidSettings = errors.New("invalid settings")

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Settings are the operator controls of a terminal.
type Settings struct {
	DisplaySeconds   int     `json:"display_seconds" mapstructure:"display_seconds"`
	SpeechRate       float64 `json:"speech_rate" mapstructure:"speech_rate"`
	FontSize         int     `json:"font_size" mapstructure:"font_size"`
	Color            string  `json:"color" mapstructure:"color"`
	NarrationEnabled bool    `json:"narration_enabled" mapstructure:"narration_enabled"`
}

func DefaultSettings() Settings {
	return Settings{
		DisplaySeconds:   DefaultDisplaySeconds,
		SpeechRate:       1.0,
		Color:            "#000000",
		NarrationEnabled: true,
	}
}

func (s Settings) Validate() error {
	if s.DisplaySeconds < MinDisplaySeconds || s.DisplaySeconds > MaxDisplaySeconds {
		return fmt.Errorf("%w: display_seconds %d outside [%d,%d]",
			ErrInvalidSettings, s.DisplaySeconds, MinDisplaySeconds, MaxDisplaySeconds)
	}
	if s.SpeechRate < MinSpeechRate || s.SpeechRate > MaxSpeechRate {
		return fmt.Errorf("%w: speech_rate %.2f outside [%.1f,%.1f]",
			ErrInvalidSettings, s.SpeechRate, MinSpeechRate, MaxSpeechRate)
	}
	if s.FontSize < 0 || s.FontSize > MaxFontSize {
		return fmt.Errorf("%w: font_size %d outside [0,%d]", ErrInvalidSettings, s.FontSize, MaxFontSize)
	}
	if !colorPattern.MatchString(s.Color) {
		return fmt.Errorf("%w: color %q is not #RRGGBB", ErrInvalidSettings, s.Color)
	}
	return nil
}
