//go:build cgo

package recognize

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine runs Tesseract locally against a preprocessed crop. The
// whitelist restricts output to digits and the page segmentation mode treats
// the register as one text line.
type TesseractEngine struct {
	Language string
}

func NewTesseractEngine() *TesseractEngine {
	return &TesseractEngine{Language: "eng"}
}

func (e *TesseractEngine) Recognize(ctx context.Context, img image.Image, report func(percent int)) (string, error) {
	report(5)
	prepped := prepare(img)
	report(30)
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmpFile, err := os.CreateTemp("", "meter-*.png")
	if err != nil {
		return "", fmt.Errorf("temp image: %w", err)
	}
	tmp := tmpFile.Name()
	_ = tmpFile.Close()
	defer os.Remove(tmp)
	if err := imaging.Save(prepped, tmp); err != nil {
		return "", fmt.Errorf("save crop: %w", err)
	}
	report(50)

	client := gosseract.NewClient()
	defer client.Close()
	_ = client.SetLanguage(e.Language)
	_ = client.SetWhitelist("0123456789")
	_ = client.SetPageSegMode(gosseract.PSM_SINGLE_LINE)
	client.SetImage(tmp)
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr error: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	report(90)
	return text, nil
}
