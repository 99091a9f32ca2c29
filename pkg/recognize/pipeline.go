package recognize

import (
	"context"
	"image"

	"github.com/rs/zerolog"
)

// Result is the outcome of one recognition run.
type Result struct {
	// Raw is the unmodified engine output.
	Raw string
	// Reading is the normalized fixed-width register, ready for operator
	// correction.
	Reading Reading
}

// Job tracks an in-flight recognition. Progress delivers monotonically
// increasing percentages ending at 100 on success; slow consumers never
// block the pipeline.
type Job struct {
	progress chan int
	done     chan struct{}
	result   Result
	err      error
}

func (j *Job) Progress() <-chan int { return j.progress }

// Wait blocks until the job finishes or ctx expires.
func (j *Job) Wait(ctx context.Context) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-j.done:
		return j.result, j.err
	}
}

// Pipeline runs an Engine and normalizes its output to the register width.
type Pipeline struct {
	engine Engine
	width  int
	log    zerolog.Logger
}

func NewPipeline(engine Engine, width int, log zerolog.Logger) *Pipeline {
	if width <= 0 {
		width = DefaultWidth
	}
	return &Pipeline{engine: engine, width: width, log: log}
}

// Width reports the register width results are normalized to.
func (p *Pipeline) Width() int { return p.width }

// Recognize starts a recognition run and returns immediately. A run whose
// raw output has no digit characters fails with ErrNoDigits so callers can
// discard stale register state instead of showing "000000" as if the meter
// read zero.
func (p *Pipeline) Recognize(ctx context.Context, img image.Image) *Job {
	job := &Job{
		progress: make(chan int, 16),
		done:     make(chan struct{}),
	}
	report := func(percent int) {
		select {
		case job.progress <- percent:
		default:
		}
	}
	go func() {
		defer close(job.done)
		defer close(job.progress)
		report(0)
		raw, err := p.engine.Recognize(ctx, img, report)
		if err != nil {
			p.log.Warn().Err(err).Msg("recognition failed")
			job.err = err
			return
		}
		if onlyDigits(raw) == "" {
			p.log.Warn().Str("raw", snippet(raw, 80)).Msg("no digits in recognizer output")
			job.err = ErrNoDigits
			return
		}
		digits := Normalize(raw, p.width)
		p.log.Debug().Str("raw", snippet(raw, 80)).Str("digits", digits).Msg("recognized register")
		job.result = Result{Raw: raw, Reading: ReadingFromString(digits, p.width)}
		report(100)
	}()
	return job
}
