// Package output stores generated artifacts on local disk or in Cloud Storage.
package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
)

// Sink receives finished artifacts. relPath always uses forward slashes.
// A Write either stores the whole artifact or nothing.
type Sink interface {
	Write(ctx context.Context, relPath string, data []byte) error
	Location(relPath string) string
	Close() error
}

// Open returns a GCSSink for "gs://bucket/prefix" and a LocalSink otherwise.
func Open(ctx context.Context, dir string) (Sink, error) {
	if bucket, prefix, ok := parseGCS(dir); ok {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		return NewGCSSink(client, bucket, prefix), nil
	}
	return NewLocalSink(dir)
}

func parseGCS(dir string) (bucket, prefix string, ok bool) {
	rest, ok := strings.CutPrefix(dir, "gs://")
	if !ok {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", false
	}
	return bucket, strings.Trim(prefix, "/"), true
}

// LocalSink writes below a root directory.
type LocalSink struct {
	root string
}

func NewLocalSink(root string) (*LocalSink, error) {
	if root == "" {
		return nil, fmt.Errorf("output directory is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &LocalSink{root: abs}, nil
}

func (s *LocalSink) Location(relPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(relPath))
}

// Write creates a temp file next to the target and renames it into place.
func (s *LocalSink) Write(_ context.Context, relPath string, data []byte) error {
	target, err := s.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", relPath, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-"+filepath.Base(target)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", relPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", relPath, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", relPath, err)
	}
	return nil
}

func (s *LocalSink) resolve(relPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if relPath == "" || filepath.IsAbs(clean) || clean == "." || clean == ".." ||
		strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid artifact path %q", relPath)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *LocalSink) Close() error { return nil }
