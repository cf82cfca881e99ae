package recognize

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// PageSource yields page images in order. *render.Pages satisfies it.
type PageSource interface {
	Len() int
	Read(i int) ([]byte, error)
}

// Recognizer transcribes the pages of one source sequentially, waiting Delay
// between successive calls.
type Recognizer struct {
	Client  Client
	Prompts *PromptSet
	Tag     string
	Retrier Retrier
	Delay   time.Duration
	Log     *slog.Logger

	// OnPage, if set, is called after each page is transcribed.
	OnPage func(page, total int)
}

// Pages returns one Markdown text per page, first to last. hints may be nil
// or hold one reference text per page. A page that cannot be recognized
// aborts the source with an error wrapping ErrRecognitionFailed.
func (r *Recognizer) Pages(ctx context.Context, source string, pages PageSource, hints []string) ([]string, error) {
	log := r.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	total := pages.Len()
	out := make([]string, total)
	for i := range total {
		page := i + 1
		if i > 0 && r.Delay > 0 {
			select {
			case <-time.After(r.Delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		img, err := pages.Read(i)
		if err != nil {
			return nil, fmt.Errorf("read page %d image: %w", page, err)
		}
		var hint string
		if i < len(hints) {
			hint = hints[i]
		}
		prompt, err := r.Prompts.Build(r.Tag, page, total, hint)
		if err != nil {
			return nil, err
		}

		req := Request{Image: img, MIMEType: "image/png", Prompt: prompt}
		reply, err := r.Retrier.Do(ctx, func(ctx context.Context) (string, error) {
			return r.Client.Recognize(ctx, req)
		}, "source", source, "page", page)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("page recognition failed", "source", source, "page", page, "model", r.Client.Model(), "error", err)
			}
			return nil, fmt.Errorf("%s page %d: %w", source, page, err)
		}

		out[i] = ExtractMarkdown(reply)
		log.Info("page recognized", "source", source, "page", page, "total", total, "chars", len(out[i]))
		if r.OnPage != nil {
			r.OnPage(page, total)
		}
	}
	return out, nil
}
