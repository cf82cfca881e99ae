package output

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
)

func TestLocalSink_WritesNestedArtifacts(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out")
	sink, err := NewLocalSink(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	if err := sink.Write(ctx, "contest/problems/Problem_A.md", []byte("# A\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sink.Write(ctx, "contest/problems/Problem_A.md", []byte("# A v2\n")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	want := filepath.Join(root, "contest", "problems", "Problem_A.md")
	if sink.Location("contest/problems/Problem_A.md") != want {
		t.Errorf("unexpected location %s", sink.Location("contest/problems/Problem_A.md"))
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "# A v2\n" {
		t.Errorf("unexpected content %q", data)
	}

	entries, _ := os.ReadDir(filepath.Dir(want))
	if len(entries) != 1 {
		t.Errorf("expected no leftover temp files, found %d entries", len(entries))
	}
}

func TestLocalSink_RejectsEscapingPaths(t *testing.T) {
	sink, err := NewLocalSink(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"", ".", "..", "../x.md", "/etc/passwd", "a/../../x.md"} {
		if err := sink.Write(context.Background(), p, []byte("x")); err == nil {
			t.Errorf("expected %q to be rejected", p)
		}
	}
}

func TestParseGCS(t *testing.T) {
	tests := []struct {
		in             string
		bucket, prefix string
		ok             bool
	}{
		{"gs://bucket/runs/2025/", "bucket", "runs/2025", true},
		{"gs://bucket", "bucket", "", true},
		{"gs://", "", "", false},
		{"output", "", "", false},
		{"/abs/gs://x", "", "", false},
	}
	for _, tt := range tests {
		bucket, prefix, ok := parseGCS(tt.in)
		if bucket != tt.bucket || prefix != tt.prefix || ok != tt.ok {
			t.Errorf("%s: got (%q, %q, %v), want (%q, %q, %v)", tt.in, bucket, prefix, ok, tt.bucket, tt.prefix, tt.ok)
		}
	}
}

func TestOpen_LocalDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	sink, err := Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sink.Close()
	if _, ok := sink.(*LocalSink); !ok {
		t.Fatalf("expected LocalSink, got %T", sink)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("expected output dir to be created: %v", err)
	}
}

// fakeGCS accepts single-request multipart uploads the way the JSON API does.
type fakeGCS struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasPrefix(r.URL.Path, "/upload/storage/v1/b/") {
		http.Error(w, "unexpected request "+r.Method+" "+r.URL.Path, http.StatusNotFound)
		return
	}
	bucket := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/upload/storage/v1/b/"), "/o")

	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	var meta struct {
		Name        string `json:"name"`
		ContentType string `json:"contentType"`
	}
	part, err := mr.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	json.NewDecoder(part).Decode(&meta)
	if meta.Name == "" {
		meta.Name = r.URL.Query().Get("name")
	}
	part, err = mr.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	body, _ := io.ReadAll(part)

	f.mu.Lock()
	f.objects[bucket+"/"+meta.Name] = string(body)
	f.types[bucket+"/"+meta.Name] = meta.ContentType
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"bucket": bucket,
		"name":   meta.Name,
		"size":   strconv.Itoa(len(body)),
	})
}

func TestGCSSink_UploadsObjects(t *testing.T) {
	fake := &fakeGCS{objects: map[string]string{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	t.Setenv("STORAGE_EMULATOR_HOST", srv.URL)

	ctx := context.Background()
	client, err := storage.NewClient(ctx)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	sink := NewGCSSink(client, "contests", "runs/2025")
	defer sink.Close()

	if err := sink.Write(ctx, "finals/finals.md", []byte("# finals\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := fake.objects["contests/runs/2025/finals/finals.md"]; got != "# finals\n" {
		t.Errorf("unexpected object content %q (have %v)", got, fake.objects)
	}
	if ct := fake.types["contests/runs/2025/finals/finals.md"]; !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("unexpected content type %q", ct)
	}
	if loc := sink.Location("finals/finals.md"); loc != "gs://contests/runs/2025/finals/finals.md" {
		t.Errorf("unexpected location %s", loc)
	}
}
