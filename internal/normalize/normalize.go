// Package normalize cleans raw OCR output before any pattern extraction
// runs over it. It is deliberately conservative: characters that carry
// meaning on a statement (decimal commas, currency symbols, reference
// numbers, the * and X of masked card numbers) are never touched.
package normalize

import (
	"regexp"
	"strings"
)

var (
	horizontalSpace = regexp.MustCompile(`[ \t\x{00a0}]+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
)

// Text normalizes raw OCR output: line endings become \n, control
// characters other than newline are dropped, runs of horizontal whitespace
// collapse to one space, every line is trimmed and runs of blank lines
// collapse to a single blank line. Pure and total over any input,
// including the empty string.
func Text(raw string) string {
	if raw == "" {
		return ""
	}

	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = stripControl(s)
	s = horizontalSpace.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")

	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// stripControl removes control characters, keeping newlines and tabs (tabs
// collapse with the rest of the horizontal whitespace afterwards). OCR
// services occasionally leak form feeds and zero-width characters into the
// text layer.
func stripControl(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case r < 0x20 || r == 0x7f:
			// dropped
		case r == '\u200b' || r == '\ufeff':
			// zero-width space / BOM
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
