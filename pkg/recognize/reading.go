package recognize

import (
	"strconv"
	"strings"
)

// Reading is an editable fixed-width digit register. A cell holds a single
// digit "0"-"9" or is empty when the operator has cleared it. Operators
// correct individual OCR mistakes cell by cell before the value is submitted.
type Reading struct {
	cells []string
}

// NewReading returns an all-empty register of the given width.
func NewReading(width int) Reading {
	if width <= 0 {
		width = DefaultWidth
	}
	return Reading{cells: make([]string, width)}
}

// ReadingFromString normalizes s to the register width and fills every cell.
func ReadingFromString(s string, width int) Reading {
	r := NewReading(width)
	for i, d := range Normalize(s, width) {
		r.cells[i] = string(d)
	}
	return r
}

// Width reports the number of cells.
func (r Reading) Width() int { return len(r.cells) }

// Digit returns the cell at i, or "" when i is out of range.
func (r Reading) Digit(i int) string {
	if i < 0 || i >= len(r.cells) {
		return ""
	}
	return r.cells[i]
}

// SetDigit replaces the cell at i. Only a single digit character or the empty
// string (clearing the cell) is accepted; anything else, including out of
// range indexes, is silently ignored so the register never holds garbage.
func (r *Reading) SetDigit(i int, ch string) {
	if i < 0 || i >= len(r.cells) {
		return
	}
	if ch == "" {
		r.cells[i] = ""
		return
	}
	if len(ch) == 1 && ch[0] >= '0' && ch[0] <= '9' {
		r.cells[i] = ch
	}
}

// Complete reports whether every cell holds a digit.
func (r Reading) Complete() bool {
	for _, c := range r.cells {
		if c == "" {
			return false
		}
	}
	return len(r.cells) > 0
}

// String concatenates the cells. Empty cells contribute nothing, so the
// result of a partially edited register is shorter than the width.
func (r Reading) String() string {
	return strings.Join(r.cells[:], "")
}

// Value parses the register as a meter value. It fails when any cell is
// still empty.
func (r Reading) Value() (int64, error) {
	if !r.Complete() {
		return 0, ErrNoDigits
	}
	return strconv.ParseInt(r.String(), 10, 64)
}
