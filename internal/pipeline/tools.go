package pipeline

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dgallion1/cpextract/internal/document"
	"github.com/dgallion1/cpextract/internal/latex"
	"github.com/dgallion1/cpextract/internal/output"
	"github.com/dgallion1/cpextract/internal/problem"
)

// writeProblems splits text and writes <stem>/problems/*.md and, when
// withIndex is set, <stem>/index.md.
func writeProblems(ctx context.Context, sink output.Sink, splitter *problem.Splitter, stem, text string, withIndex bool, res *FileResult) error {
	problems, err := splitter.Split(text)
	if err != nil {
		return fmt.Errorf("split %s: %w", stem, err)
	}
	res.Problems = problems
	res.Stats = problem.ContestStats(problems)

	names := problem.FileNames(problems)
	for i, p := range problems {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel := path.Join(stem, "problems", names[i])
		if err := sink.Write(ctx, rel, []byte(p.Markdown())); err != nil {
			return fmt.Errorf("write problem %s: %w", p.ID, err)
		}
		res.Files = append(res.Files, sink.Location(rel))
	}

	if !withIndex {
		return nil
	}
	rel := path.Join(stem, "index.md")
	index := problem.Index(stem, problem.Entries(problems, "problems"))
	if err := sink.Write(ctx, rel, []byte(index)); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	res.Index = sink.Location(rel)
	return nil
}

// SplitMarkdown splits an existing aggregated Markdown file into problem
// files under <stem>/problems in sink. Page markers are ignored.
func SplitMarkdown(ctx context.Context, mdPath string, splitter *problem.Splitter, sink output.Sink, withIndex bool) (*FileResult, error) {
	start := time.Now()
	res := &FileResult{Source: mdPath, Issues: []latex.Issue{}, Problems: []problem.Problem{}, Files: []string{}}
	defer func() { res.Duration = time.Since(start) }()

	data, err := os.ReadFile(mdPath)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", mdPath, err)
	}
	text := string(data)
	res.Pages = len(document.SplitPages(text))

	base := filepath.Base(mdPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if err := writeProblems(ctx, sink, splitter, stem, document.Body(text), withIndex, res); err != nil {
		return res, err
	}
	return res, nil
}

// IndexDir builds an index of the Problem_*.md files in dir. Entry paths are
// relative to relTo, the directory the index will be written to. Identifiers
// and titles come from each file's heading, or from its name when the file
// has none.
func IndexDir(dir, relTo string, splitter *problem.Splitter) ([]problem.IndexEntry, error) {
	files, err := filepath.Glob(filepath.Join(dir, "Problem_*.md"))
	if err != nil {
		return nil, err
	}
	if files == nil {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("problems dir: %w", err)
		}
	}
	sort.Strings(files)

	entries := make([]problem.IndexEntry, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		id, title := headingOf(string(data), splitter)
		if id == "" {
			id, title = parseFileName(filepath.Base(f))
		}
		rel, err := filepath.Rel(relTo, f)
		if err != nil {
			rel = f
		}
		entries = append(entries, problem.IndexEntry{ID: id, Title: title, Path: filepath.ToSlash(rel)})
	}
	return entries, nil
}

func headingOf(text string, splitter *problem.Splitter) (id, title string) {
	problems, err := splitter.Split(text)
	if err != nil || len(problems) == 0 || problems[0].Fallback {
		return "", ""
	}
	return problems[0].ID, problems[0].Title
}

// parseFileName reverses Problem.FileName as far as possible:
// "Problem_A_Two_Sum.md" gives ("A", "Two Sum").
func parseFileName(name string) (id, title string) {
	stem := strings.TrimPrefix(strings.TrimSuffix(name, filepath.Ext(name)), "Problem_")
	id, title, _ = strings.Cut(stem, "_")
	return id, strings.ReplaceAll(title, "_", " ")
}

// ValidateMarkdown runs the LaTeX validator over a Markdown file.
func ValidateMarkdown(mdPath string) ([]latex.Issue, error) {
	data, err := os.ReadFile(mdPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", mdPath, err)
	}
	return latex.Validate(string(data)), nil
}
