package render

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/sync/errgroup"
)

// FitzBackend renders pages with MuPDF through go-fitz. Rasterization is
// serialized by the document handle; PNG encoding runs on Workers goroutines.
type FitzBackend struct {
	Workers int
}

func (b *FitzBackend) Name() string { return "go-fitz" }

func (b *FitzBackend) Render(ctx context.Context, path string, dpi int, dir string) ([]string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	return writePages(ctx, dir, n, b.Workers, func(i int) (image.Image, error) {
		return doc.ImageDPI(i, float64(dpi))
	})
}

// PageFileName is the file name used for the 0-based page i.
func PageFileName(i int) string {
	return fmt.Sprintf("page_%03d.png", i+1)
}

// writePages rasterizes n pages in order and encodes them concurrently. The
// returned paths are indexed by page regardless of completion order.
func writePages(ctx context.Context, dir string, n, workers int, rasterize func(i int) (image.Image, error)) ([]string, error) {
	if workers <= 0 {
		workers = 1
	}
	paths := make([]string, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range n {
		if gctx.Err() != nil {
			break
		}
		img, err := rasterize(i)
		if err != nil {
			g.Wait()
			return nil, fmt.Errorf("render page %d: %w", i+1, err)
		}
		g.Go(func() error {
			p := filepath.Join(dir, PageFileName(i))
			if err := encodePNG(p, img); err != nil {
				return fmt.Errorf("encode page %d: %w", i+1, err)
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return paths, nil
}

func encodePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
