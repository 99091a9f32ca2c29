package roi

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

// ErrFrameNotReady is returned when the source frame has no usable pixels yet
// (the stream has not produced real dimensions). Extraction must be skipped
// rather than attempted on a zero-sized buffer.
var ErrFrameNotReady = errors.New("frame has no dimensions yet")

// Rect is a region of interest expressed as fractions (0-1) of the frame.
// The same value drives both the visual guide overlay and the crop math, so
// the highlighted rectangle and the extracted pixels can never diverge.
type Rect struct {
	Top    float64 `mapstructure:"top" json:"top"`
	Left   float64 `mapstructure:"left" json:"left"`
	Width  float64 `mapstructure:"width" json:"width"`
	Height float64 `mapstructure:"height" json:"height"`
}

// Default matches the capture overlay shipped with the back office: a wide
// band across the middle of the frame where the meter register sits.
var Default = Rect{Top: 0.3, Left: 0.2, Width: 0.6, Height: 0.2}

// Validate checks that the rectangle is non-empty and stays inside the frame.
func (r Rect) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("roi: empty region %+v", r)
	}
	if r.Top < 0 || r.Left < 0 || r.Top+r.Height > 1 || r.Left+r.Width > 1 {
		return fmt.Errorf("roi: region %+v outside unit frame", r)
	}
	return nil
}

// PixelRect maps the fractional region onto a w x h frame:
// (x, y, w, h) = (W*left, H*top, W*width, H*height).
func (r Rect) PixelRect(w, h int) image.Rectangle {
	x := int(float64(w) * r.Left)
	y := int(float64(h) * r.Top)
	cw := int(float64(w) * r.Width)
	ch := int(float64(h) * r.Height)
	return image.Rect(x, y, x+cw, y+ch)
}

// Extract crops the region from a full frame. The frame must already have
// nonzero dimensions; callers polling a warming-up stream should treat
// ErrFrameNotReady as "try again", not as a failure.
func (r Rect) Extract(frame image.Image) (*image.NRGBA, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	b := frame.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, ErrFrameNotReady
	}
	return imaging.Crop(frame, r.PixelRect(b.Dx(), b.Dy())), nil
}

// DataURI encodes an image as a base64 PNG data URI for operator preview.
func DataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode preview: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
