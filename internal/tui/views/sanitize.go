package views

import (
	"strings"
	"unicode"
)

// sanitizeForTerminal drops runes tcell cannot lay out: emoji modifiers
// that merge glyphs (skin tones, ZWJ, variation selectors) and control
// characters other than newline and tab, which incoming messages may carry.
func sanitizeForTerminal(s string) string {
	return strings.Map(func(r rune) rune {
		if dropRune(r) {
			return -1
		}
		return r
	}, s)
}

func dropRune(r rune) bool {
	switch {
	case r == '\n' || r == '\t':
		return false
	// Skin tone modifiers, zero width joiner, variation selectors and
	// their supplement.
	case r >= 0x1F3FB && r <= 0x1F3FF, r == 0x200D,
		r >= 0xFE00 && r <= 0xFE0F, r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return unicode.IsControl(r)
	}
}
