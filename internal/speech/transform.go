package speech

import (
	"fmt"
	"strings"
)

// Separator is inserted between digits so engines read them one by one
// instead of as a single large number.
const Separator = "\u200b"

// Transform rewrites a code into the text handed to the engine.
type Transform func(code string) string

// SafeText separates adjacent digits with a zero-width space. For a pure
// numeric code that is every digit; in mixed codes only digit runs are
// split, letters and punctuation are left alone.
func SafeText(code string) string {
	var b strings.Builder
	b.Grow(len(code) * 2)
	prevDigit := false
	for _, r := range code {
		d := isDigit(r)
		if d && prevDigit {
			b.WriteString(Separator)
		}
		b.WriteRune(r)
		prevDigit = d
	}
	return b.String()
}

var cnDigits = [...]string{"零", "一", "二", "三", "四", "五", "六", "七", "八", "九"}

// SpokenDigits spells every ASCII digit as a Chinese numeral, which
// Mandarin voices read individually.
func SpokenDigits(code string) string {
	var b strings.Builder
	for _, r := range code {
		if isDigit(r) {
			b.WriteString(cnDigits[r-'0'])
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func TransformByName(name string) (Transform, error) {
	switch name {
	case "", "zwsp":
		return SafeText, nil
	case "cn-digits":
		return SpokenDigits, nil
	default:
		return nil, fmt.Errorf("unknown speech transform %q", name)
	}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
