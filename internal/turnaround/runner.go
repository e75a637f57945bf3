// Package turnaround orchestrates one generation run: derive the three
// missing-viewpoint prompts, then render them strictly one after another.
package turnaround

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"turnaround-studio/internal/gemini"
	"turnaround-studio/internal/history"
	"turnaround-studio/internal/viewpoint"
)

// Stage is the current phase of a run.
type Stage string

const (
	StageIdle      Stage = "idle"
	StageAnalyzing Stage = "analyzing"
	StageRendering Stage = "rendering"
	StageComplete  Stage = "complete"
	StageFailed    Stage = "failed"
)

// Generator is the slice of the model client a run needs.
type Generator interface {
	DerivePrompts(ctx context.Context, img gemini.ImageInput, framing viewpoint.Framing, mode viewpoint.Mode) ([]string, error)
	RenderView(ctx context.Context, img gemini.ImageInput, viewPrompt, styleKey, aspectRatio string, mode viewpoint.Mode) (string, error)
}

type Input struct {
	Source      string // "web" | "bot", for the audit log
	Image       gemini.ImageInput
	Framing     viewpoint.Framing
	Style       string
	AspectRatio string
	Mode        viewpoint.Mode
}

// GeneratedImage pairs one rendered view with its originating prompt.
type GeneratedImage struct {
	DataURI string
	Prompt  string
}

type Result struct {
	Prompts []string
	Images  []GeneratedImage
}

// OnStage reports progress. view is 1-based and only meaningful for
// StageRendering.
type OnStage func(stage Stage, view int)

// Callbacks receive progress while a run executes. Either field may be nil.
type Callbacks struct {
	OnStage OnStage
	// OnImage fires as soon as one view finishes rendering, so callers
	// can show results incrementally.
	OnImage func(view int, img GeneratedImage)
}

type Options struct {
	Generator Generator
	Logger    *slog.Logger
	Recorder  history.Recorder
}

type Runner struct {
	gen      Generator
	logger   *slog.Logger
	recorder history.Recorder
}

func NewRunner(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	recorder := opts.Recorder
	if recorder == nil {
		recorder = history.Noop{}
	}

	return &Runner{
		gen:      opts.Generator,
		logger:   logger,
		recorder: recorder,
	}
}

// Run executes the sequential state machine. Transitions are not
// resumable: the first failure aborts the remaining stages, but any views
// rendered before it stay in the returned partial Result.
func (r *Runner) Run(ctx context.Context, in Input, cb Callbacks) (Result, error) {
	started := time.Now()
	emit := func(stage Stage, view int) {
		if cb.OnStage != nil {
			cb.OnStage(stage, view)
		}
	}

	var res Result

	emit(StageAnalyzing, 0)
	prompts, err := r.gen.DerivePrompts(ctx, in.Image, in.Framing, in.Mode)
	if err != nil {
		emit(StageFailed, 0)
		r.finish(ctx, in, res, started, err)
		return res, fmt.Errorf("analyze: %w", err)
	}
	res.Prompts = prompts

	for i, prompt := range prompts {
		view := i + 1
		emit(StageRendering, view)

		uri, err := r.gen.RenderView(ctx, in.Image, prompt, in.Style, in.AspectRatio, in.Mode)
		if err != nil {
			emit(StageFailed, view)
			r.finish(ctx, in, res, started, err)
			return res, fmt.Errorf("render view %d: %w", view, err)
		}
		img := GeneratedImage{DataURI: uri, Prompt: prompt}
		res.Images = append(res.Images, img)
		if cb.OnImage != nil {
			cb.OnImage(view, img)
		}
	}

	emit(StageComplete, 0)
	r.finish(ctx, in, res, started, nil)
	return res, nil
}

func (r *Runner) finish(ctx context.Context, in Input, res Result, started time.Time, runErr error) {
	status := "complete"
	if runErr != nil {
		status = string(Classify(runErr))
	}

	run := history.Run{
		Source:      in.Source,
		Mode:        string(in.Mode),
		Framing:     string(in.Framing),
		Style:       in.Style,
		AspectRatio: in.AspectRatio,
		Status:      status,
		Views:       len(res.Images),
		Duration:    time.Since(started),
	}
	if err := r.recorder.Record(ctx, run); err != nil {
		r.logger.Warn("run audit record failed", "err", err)
	}

	if runErr != nil {
		r.logger.Error("run failed", "status", status, "views", len(res.Images), "err", runErr)
		return
	}
	r.logger.Info("run complete", "views", len(res.Images), "dur_ms", time.Since(started).Milliseconds())
}
