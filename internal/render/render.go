package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrSourceUnreadable marks a PDF that does not exist or cannot be parsed.
var ErrSourceUnreadable = errors.New("source unreadable")

// Backend renders every page of a PDF into PNG files inside dir and returns
// their paths in page order.
type Backend interface {
	Name() string
	Render(ctx context.Context, path string, dpi int, dir string) ([]string, error)
}

// Pages is the ordered output of one Render call. Call Cleanup when done.
type Pages struct {
	Source string
	DPI    int
	Paths  []string
	dir    string
}

// Len returns the number of rendered pages.
func (p *Pages) Len() int { return len(p.Paths) }

// Read returns the PNG bytes of the 0-based page i.
func (p *Pages) Read(i int) ([]byte, error) {
	if i < 0 || i >= len(p.Paths) {
		return nil, fmt.Errorf("page %d out of range (%d pages)", i+1, len(p.Paths))
	}
	return os.ReadFile(p.Paths[i])
}

// Cleanup removes the temporary image directory. It is safe to call twice.
func (p *Pages) Cleanup() error {
	if p == nil || p.dir == "" {
		return nil
	}
	err := os.RemoveAll(p.dir)
	p.dir = ""
	return err
}

// Rasterizer turns PDFs into page images.
type Rasterizer struct {
	dpi      int
	backends []Backend
	inspect  func(path string) (int, error)
	log      *slog.Logger
}

// New returns a Rasterizer that tries go-fitz first and falls back to
// pdftoppm when it is installed.
func New(dpi, workers int, log *slog.Logger) *Rasterizer {
	backends := []Backend{&FitzBackend{Workers: workers}}
	if pdftoppmAvailable() {
		backends = append(backends, &PdftoppmBackend{})
	}
	return &Rasterizer{
		dpi:      dpi,
		backends: backends,
		inspect:  inspectPDF,
		log:      log,
	}
}

// Render renders path at the configured DPI. Missing or invalid files yield
// an error wrapping ErrSourceUnreadable. On failure no temporary files are
// left behind.
func (r *Rasterizer) Render(ctx context.Context, path string) (*Pages, error) {
	if r.dpi <= 0 {
		return nil, fmt.Errorf("dpi must be positive, got %d", r.dpi)
	}
	n, err := r.inspect(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnreadable, path, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s: no pages", ErrSourceUnreadable, path)
	}

	dir, err := os.MkdirTemp("", "cpextract-pages-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	pages := &Pages{Source: path, DPI: r.dpi, dir: dir}

	var errs []error
	for _, b := range r.backends {
		if err := ctx.Err(); err != nil {
			pages.Cleanup()
			return nil, err
		}
		paths, err := b.Render(ctx, path, r.dpi, dir)
		if err == nil && len(paths) != n {
			err = fmt.Errorf("rendered %d pages, expected %d", len(paths), n)
		}
		if err != nil {
			if ctx.Err() != nil {
				pages.Cleanup()
				return nil, ctx.Err()
			}
			r.log.Warn("render backend failed", "backend", b.Name(), "source", path, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			clearDir(dir)
			continue
		}
		pages.Paths = paths
		r.log.Debug("rendered pdf", "backend", b.Name(), "source", path, "pages", n, "dpi", r.dpi)
		return pages, nil
	}

	pages.Cleanup()
	if len(errs) == 0 {
		return nil, fmt.Errorf("no render backend available")
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnreadable, path, errors.Join(errs...))
}

var pdfMagic = []byte("%PDF-")

// inspectPDF checks the file header, validates the structure with pdfcpu and
// returns the page count.
func inspectPDF(path string) (int, error) {
	if err := checkHeader(path); err != nil {
		return 0, err
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		return 0, fmt.Errorf("validate: %w", err)
	}
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("page count: %w", err)
	}
	return n, nil
}

func checkHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("is a directory")
	}

	// The header may follow a few bytes of garbage; readers accept up to 1KB.
	head := make([]byte, 1024)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	if !bytes.Contains(head[:n], pdfMagic) {
		return fmt.Errorf("not a PDF file")
	}
	return nil
}

func clearDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		os.RemoveAll(filepath.Join(dir, e.Name()))
	}
}
