package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"time"
)

// RemoteEngine posts the crop to an external recognizer service and reads
// back its digit array. Used when the capture host is too small to run
// Tesseract itself.
type RemoteEngine struct {
	URL    string
	Client *http.Client
}

func NewRemoteEngine(url string) *RemoteEngine {
	return &RemoteEngine{
		URL:    url,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

type remoteResponse struct {
	RecognizedArray []json.Number `json:"recognized_array"`
}

func (e *RemoteEngine) Recognize(ctx context.Context, img image.Image, report func(percent int)) (string, error) {
	report(5)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "frame.png")
	if err != nil {
		return "", fmt.Errorf("multipart form: %w", err)
	}
	if err := png.Encode(part, img); err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("multipart form: %w", err)
	}
	report(25)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("recognizer request: %w", err)
	}
	defer resp.Body.Close()
	report(70)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("recognizer status %d", resp.StatusCode)
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode recognizer response: %w", err)
	}
	var b bytes.Buffer
	for _, n := range out.RecognizedArray {
		b.WriteString(n.String())
	}
	report(90)
	return b.String(), nil
}
