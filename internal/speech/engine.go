package speech

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Engine speaks text and returns once it is done, failed, or ctx is
// cancelled.
type Engine interface {
	Speak(ctx context.Context, text string, rate float64) error
}

// CommandEngine runs an external text-to-speech binary per utterance.
// Args may contain {text} and {wpm}; without {text} the text is appended.
type CommandEngine struct {
	Path    string
	Args    []string
	BaseWPM int
}

func (e *CommandEngine) Speak(ctx context.Context, text string, rate float64) error {
	base := e.BaseWPM
	if base <= 0 {
		base = 175
	}
	wpm := strconv.Itoa(int(float64(base) * rate))

	args := make([]string, 0, len(e.Args)+1)
	hasText := false
	for _, a := range e.Args {
		if strings.Contains(a, "{text}") {
			hasText = true
		}
		a = strings.ReplaceAll(a, "{text}", text)
		a = strings.ReplaceAll(a, "{wpm}", wpm)
		args = append(args, a)
	}
	if !hasText {
		args = append(args, text)
	}

	cmd := exec.CommandContext(ctx, e.Path, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", e.Path, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// SilentEngine pretends to speak, taking PerRune for each rune at rate 1.
type SilentEngine struct {
	PerRune time.Duration
}

func (e *SilentEngine) Speak(ctx context.Context, text string, rate float64) error {
	per := e.PerRune
	if per <= 0 {
		per = 300 * time.Millisecond
	}
	if rate <= 0 {
		rate = 1
	}
	d := time.Duration(float64(per) * float64(utf8.RuneCountInString(text)) / rate)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
