package recognize

import "errors"

// ErrNoDigits is returned when OCR output contains no digit characters at all
// (glare, an empty crop, or a mis-aimed camera).
var ErrNoDigits = errors.New("no digits recognized")
