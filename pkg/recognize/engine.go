package recognize

import (
	"context"
	"image"
)

// Engine turns a register crop into raw recognized text. Implementations
// call report with a coarse completion percentage as work proceeds; report
// is never nil.
type Engine interface {
	Recognize(ctx context.Context, img image.Image, report func(percent int)) (string, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, img image.Image, report func(percent int)) (string, error)

func (f EngineFunc) Recognize(ctx context.Context, img image.Image, report func(percent int)) (string, error) {
	return f(ctx, img, report)
}
