package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// FileOutcome is the result of one file in a batch.
type FileOutcome struct {
	Source string
	Result *FileResult
	Err    error
}

// BatchResult collects per-file outcomes in source order.
type BatchResult struct {
	Files    []FileOutcome
	Duration time.Duration
}

// Succeeded returns the number of files processed without error.
func (b *BatchResult) Succeeded() int {
	n := 0
	for _, f := range b.Files {
		if f.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the outcomes that ended in an error.
func (b *BatchResult) Failed() []FileOutcome {
	var out []FileOutcome
	for _, f := range b.Files {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

// Count returns how many files failed with an error matching target.
func (b *BatchResult) Count(target error) int {
	n := 0
	for _, f := range b.Files {
		if f.Err != nil && errors.Is(f.Err, target) {
			n++
		}
	}
	return n
}

// ListPDFs returns the *.pdf files directly inside dir, sorted by name.
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// ProcessBatch processes every PDF in dir with up to cfg.FileWorkers files in
// flight. A failing file does not stop the others. Files not started before
// ctx is canceled are reported with the context error.
func (r *Runner) ProcessBatch(ctx context.Context, dir string) (*BatchResult, error) {
	start := time.Now()
	files, err := ListPDFs(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		r.log.Warn("no pdf files found", "dir", dir)
	}

	res := &BatchResult{Files: make([]FileOutcome, len(files))}
	var g errgroup.Group
	g.SetLimit(max(r.cfg.FileWorkers, 1))
	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				res.Files[i] = FileOutcome{Source: f, Err: err}
				return nil
			}
			r.log.Info("processing file", "source", f, "index", i+1, "total", len(files))
			fr, err := r.ProcessFile(ctx, f)
			res.Files[i] = FileOutcome{Source: f, Result: fr, Err: err}
			if err != nil {
				r.log.Error("file failed", "source", f, "error", err)
			}
			return nil
		})
	}
	g.Wait()

	res.Duration = time.Since(start)
	r.log.Info("batch complete", "dir", dir, "files", len(files),
		"succeeded", res.Succeeded(), "failed", len(res.Failed()), "duration", res.Duration)
	return res, nil
}
