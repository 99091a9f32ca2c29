package recognize

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testFrame() image.Image {
	return image.NewNRGBA(image.Rect(0, 0, 120, 40))
}

func TestPipelineNormalizesResult(t *testing.T) {
	eng := EngineFunc(func(ctx context.Context, img image.Image, report func(int)) (string, error) {
		report(50)
		return " 12 34 ", nil
	})
	p := NewPipeline(eng, 6, zerolog.Nop())
	job := p.Recognize(context.Background(), testFrame())
	res, err := job.Wait(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Reading.String() != "001234" {
		t.Fatalf("expected 001234 got %s", res.Reading.String())
	}
	if res.Raw != " 12 34 " {
		t.Fatalf("raw output not preserved: %q", res.Raw)
	}
}

func TestPipelineProgressEndsAtHundred(t *testing.T) {
	eng := EngineFunc(func(ctx context.Context, img image.Image, report func(int)) (string, error) {
		report(40)
		report(80)
		return "123456", nil
	})
	p := NewPipeline(eng, 6, zerolog.Nop())
	job := p.Recognize(context.Background(), testFrame())
	if _, err := job.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := -1
	for pct := range job.Progress() {
		if pct < last {
			t.Fatalf("progress went backwards: %d after %d", pct, last)
		}
		last = pct
	}
	if last != 100 {
		t.Fatalf("expected final progress 100 got %d", last)
	}
}

func TestPipelineNoDigits(t *testing.T) {
	eng := EngineFunc(func(ctx context.Context, img image.Image, report func(int)) (string, error) {
		return "---", nil
	})
	p := NewPipeline(eng, 6, zerolog.Nop())
	job := p.Recognize(context.Background(), testFrame())
	if _, err := job.Wait(context.Background()); !errors.Is(err, ErrNoDigits) {
		t.Fatalf("expected ErrNoDigits got %v", err)
	}
}

func TestPipelineEngineError(t *testing.T) {
	boom := errors.New("camera unplugged")
	eng := EngineFunc(func(ctx context.Context, img image.Image, report func(int)) (string, error) {
		return "", boom
	})
	p := NewPipeline(eng, 6, zerolog.Nop())
	job := p.Recognize(context.Background(), testFrame())
	if _, err := job.Wait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected engine error got %v", err)
	}
}

func TestPipelineWaitHonorsContext(t *testing.T) {
	eng := EngineFunc(func(ctx context.Context, img image.Image, report func(int)) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	p := NewPipeline(eng, 6, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	job := p.Recognize(ctx, testFrame())
	if _, err := job.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded got %v", err)
	}
}
