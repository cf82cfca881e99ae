package output

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCSSink writes each artifact as one object under bucket/prefix.
type GCSSink struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
	prefix string
}

func NewGCSSink(client *storage.Client, bucket, prefix string) *GCSSink {
	return &GCSSink{
		client: client,
		bucket: client.Bucket(bucket),
		name:   bucket,
		prefix: prefix,
	}
}

func (s *GCSSink) objectName(relPath string) string {
	if s.prefix == "" {
		return path.Clean(relPath)
	}
	return path.Join(s.prefix, relPath)
}

func (s *GCSSink) Location(relPath string) string {
	return "gs://" + s.name + "/" + s.objectName(relPath)
}

// Write uploads data in a single request. A failed upload is aborted so no
// partial object becomes visible.
func (s *GCSSink) Write(ctx context.Context, relPath string, data []byte) error {
	name := s.objectName(relPath)
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.bucket.Object(name).NewWriter(wctx)
	w.ChunkSize = 0
	w.ContentType = contentType(relPath)

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("write %s: %w", s.Location(relPath), describe(err))
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize %s: %w", s.Location(relPath), describe(err))
	}
	return nil
}

func (s *GCSSink) Close() error {
	return s.client.Close()
}

func contentType(relPath string) string {
	if path.Ext(relPath) == ".md" {
		return "text/markdown; charset=utf-8"
	}
	return "application/octet-stream"
}

// describe adds the HTTP status to Cloud Storage API errors.
func describe(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return fmt.Errorf("storage api status %d: %s: %w", gerr.Code, gerr.Message, err)
	}
	return err
}
