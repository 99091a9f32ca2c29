//go:build !cgo

package recognize

import (
	"context"
	"errors"
	"image"
)

// TesseractEngine requires cgo (gosseract binds libtesseract). In builds
// without cgo this stub keeps the API shape; Recognize reports that the
// engine is unavailable.
type TesseractEngine struct {
	Language string
}

func NewTesseractEngine() *TesseractEngine {
	return &TesseractEngine{Language: "eng"}
}

func (e *TesseractEngine) Recognize(ctx context.Context, img image.Image, report func(percent int)) (string, error) {
	return "", errors.New("tesseract engine unavailable: built without cgo")
}
