package recognize

import "strings"

// DefaultWidth is the register width of the meters in the field. All stored
// readings are exactly this many digits.
const DefaultWidth = 6

// Normalize converts raw OCR text into a fixed-width digit string. Non-digit
// characters are stripped, short values are left-padded with zeros, and long
// values keep their rightmost digits (mechanical registers roll the low
// digits, so the right side is the trustworthy side).
//
//	Normalize("12", 6)      == "000012"
//	Normalize("1234567", 6) == "234567"
//
// The function is idempotent: Normalize(Normalize(s, w), w) == Normalize(s, w).
func Normalize(raw string, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	digits := onlyDigits(raw)
	if len(digits) > width {
		digits = digits[len(digits)-width:]
	}
	if len(digits) < width {
		digits = strings.Repeat("0", width-len(digits)) + digits
	}
	return digits
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// snippet trims a string for log lines.
func snippet(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
