// Package pipeline turns contest PDFs into Markdown artifacts: the aggregated
// document, one file per problem and an index.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/dgallion1/cpextract/internal/config"
	"github.com/dgallion1/cpextract/internal/document"
	"github.com/dgallion1/cpextract/internal/latex"
	"github.com/dgallion1/cpextract/internal/output"
	"github.com/dgallion1/cpextract/internal/problem"
	"github.com/dgallion1/cpextract/internal/recognize"
	"github.com/dgallion1/cpextract/internal/render"
)

// Rasterizer renders a PDF to page images. *render.Rasterizer satisfies it.
type Rasterizer interface {
	Render(ctx context.Context, path string) (*render.Pages, error)
}

// Stage names reported through Progress.
const (
	StageRendering   = "rendering"
	StageRecognizing = "recognizing"
	StageValidating  = "validating"
	StageSplitting   = "splitting"
	StageWriting     = "writing"
)

// Progress receives stage changes and, while recognizing, page counts.
type Progress func(stage string, page, total int)

// FileResult describes what was produced for one PDF.
type FileResult struct {
	Source   string            `json:"source"`
	Pages    int               `json:"pages"`
	Document string            `json:"document,omitempty"`
	Issues   []latex.Issue     `json:"issues"`
	Problems []problem.Problem `json:"problems"`
	Files    []string          `json:"files"`
	Index    string            `json:"index,omitempty"`
	Stats    problem.Stats     `json:"stats"`
	Duration time.Duration     `json:"duration_ns"`
}

// Runner executes the per-file pipeline.
type Runner struct {
	raster     Rasterizer
	recognizer recognize.Recognizer
	splitter   *problem.Splitter
	sink       output.Sink
	cfg        config.Config
	log        *slog.Logger

	now       func() time.Time
	textLayer func(path string) ([]string, error)
}

// NewRunner wires the pipeline stages. client is used sequentially per file.
func NewRunner(cfg config.Config, raster Rasterizer, client recognize.Client, sink output.Sink, log *slog.Logger) (*Runner, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	prompts := recognize.NewPromptSet(cfg.Prompts)
	if !prompts.Has(cfg.PromptTag) {
		return nil, fmt.Errorf("unknown prompt tag %q", cfg.PromptTag)
	}
	splitter, err := NewSplitter(cfg, log)
	if err != nil {
		return nil, err
	}
	return &Runner{
		raster: raster,
		recognizer: recognize.Recognizer{
			Client:  client,
			Prompts: prompts,
			Tag:     cfg.PromptTag,
			Retrier: recognize.Retrier{MaxRetries: cfg.MaxRetries, Delay: cfg.RetryDelay, Log: log},
			Delay:   cfg.DelayBetweenPages,
			Log:     log,
		},
		splitter:  splitter,
		sink:      sink,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		textLayer: render.TextLayer,
	}, nil
}

// NewSplitter builds the problem splitter described by cfg.
func NewSplitter(cfg config.Config, log *slog.Logger) (*problem.Splitter, error) {
	return problem.NewSplitter(cfg.HeadingPattern, cfg.NoMatchPolicy == config.PolicyStrict, cfg.FallbackID, log)
}

// ProcessFile runs one PDF through every enabled stage. Artifacts written
// before a failure or cancellation are kept. The returned result is non-nil
// even when err is set.
func (r *Runner) ProcessFile(ctx context.Context, pdfPath string) (*FileResult, error) {
	return r.process(ctx, pdfPath, nil)
}

func (r *Runner) process(ctx context.Context, pdfPath string, progress Progress) (*FileResult, error) {
	start := time.Now()
	res := &FileResult{Source: pdfPath, Issues: []latex.Issue{}, Problems: []problem.Problem{}, Files: []string{}}
	defer func() { res.Duration = time.Since(start) }()

	report := func(stage string, page, total int) {
		if progress != nil {
			progress(stage, page, total)
		}
	}
	log := r.log.With("source", pdfPath)

	report(StageRendering, 0, 0)
	pages, err := r.raster.Render(ctx, pdfPath)
	if err != nil {
		log.Error("render failed", "error", err)
		return res, err
	}
	defer pages.Cleanup()
	res.Pages = pages.Len()
	log.Info("rendered pages", "pages", res.Pages, "dpi", pages.DPI)

	var hints []string
	if r.cfg.TextHint {
		if hints, err = r.textLayer(pdfPath); err != nil {
			log.Warn("text layer unavailable", "error", err)
			hints = nil
		}
	}

	report(StageRecognizing, 0, res.Pages)
	rec := r.recognizer
	rec.OnPage = func(page, total int) { report(StageRecognizing, page, total) }
	texts, err := rec.Pages(ctx, pdfPath, pages, hints)
	if err != nil {
		return res, err
	}

	doc := document.Aggregate(pdfPath, texts, r.now())
	stem := doc.Title()
	docPath := path.Join(stem, stem+".md")

	// Validation runs on the written text so issue lines match the file.
	md := doc.Markdown()
	report(StageWriting, 0, 0)
	if err := r.sink.Write(ctx, docPath, []byte(md)); err != nil {
		return res, fmt.Errorf("write document: %w", err)
	}
	res.Document = r.sink.Location(docPath)
	log.Info("wrote document", "path", res.Document)

	if r.cfg.ValidateLatex {
		report(StageValidating, 0, 0)
		res.Issues = latex.Validate(md)
		for _, is := range res.Issues {
			log.Warn("latex issue", "line", is.Line, "category", is.Category, "message", is.Message)
		}
	}

	if !r.cfg.AutoSplit {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	report(StageSplitting, 0, 0)
	if err := writeProblems(ctx, r.sink, r.splitter, stem, document.Body(doc.Text()), r.cfg.GenerateIndex, res); err != nil {
		return res, err
	}
	log.Info("split problems", "problems", len(res.Problems), "summary", res.Stats.Summary())
	return res, nil
}
