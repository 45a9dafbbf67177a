package ocr

import "strings"

// Clean reduces raw OCR text to a numeric literal.
//
// Characters outside [0-9.-] are dropped. Only the first '.' is kept; later
// dots are thousands-separator noise. A '-' survives only as the first
// character of the result. Clean is idempotent.
//
//	Clean(" 1.234.5 g")  == "1.2345"
//	Clean("--12-3")      == "-123"
//	Clean("4-5")         == "45"
func Clean(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	seenDot := false
	for _, r := range strings.TrimSpace(text) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.':
			if !seenDot {
				seenDot = true
				b.WriteRune(r)
			}
		case r == '-':
			if b.Len() == 0 {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
