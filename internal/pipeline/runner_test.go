package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/cpextract/internal/config"
	"github.com/dgallion1/cpextract/internal/latex"
	"github.com/dgallion1/cpextract/internal/output"
	"github.com/dgallion1/cpextract/internal/problem"
	"github.com/dgallion1/cpextract/internal/recognize"
	"github.com/dgallion1/cpextract/internal/render"
)

// fakeRasterizer writes one small file per page whose content names the
// source and page, so the fake client can answer per page.
type fakeRasterizer struct {
	dir        string
	pages      map[string]int
	unreadable map[string]bool
}

func (f *fakeRasterizer) Render(_ context.Context, path string) (*render.Pages, error) {
	name := filepath.Base(path)
	if f.unreadable[name] {
		return nil, fmt.Errorf("%w: %s: not a PDF file", render.ErrSourceUnreadable, path)
	}
	n, ok := f.pages[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s: no such file", render.ErrSourceUnreadable, path)
	}
	p := &render.Pages{Source: path, DPI: 400}
	for i := range n {
		img := filepath.Join(f.dir, fmt.Sprintf("%s-%d.png", name, i+1))
		if err := os.WriteFile(img, []byte(fmt.Sprintf("%s:%d", name, i+1)), 0o644); err != nil {
			return nil, err
		}
		p.Paths = append(p.Paths, img)
	}
	return p, nil
}

// fakeClient answers with the scripted reply for "<file>:<page>".
type fakeClient struct {
	mu      sync.Mutex
	replies map[string]string
	fail    map[string]error
	calls   []string
}

func (c *fakeClient) Recognize(ctx context.Context, req recognize.Request) (string, error) {
	key := string(req.Image)
	c.mu.Lock()
	c.calls = append(c.calls, key)
	err := c.fail[key]
	reply, ok := c.replies[key]
	c.mu.Unlock()

	if err != nil {
		return "", err
	}
	if !ok {
		return "```markdown\nblank page\n```", nil
	}
	return "```markdown\n" + reply + "\n```", nil
}

func (c *fakeClient) Model() string { return "fake" }
func (c *fakeClient) Close() error  { return nil }

func testConfig() config.Config {
	cfg := config.Default()
	cfg.DelayBetweenPages = 0
	cfg.RetryDelay = 0
	cfg.MaxRetries = 1
	return cfg
}

type harness struct {
	runner *Runner
	raster *fakeRasterizer
	client *fakeClient
	out    string
}

func newHarness(t *testing.T, cfg config.Config) *harness {
	t.Helper()
	out := filepath.Join(t.TempDir(), "out")
	sink, err := output.NewLocalSink(out)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		raster: &fakeRasterizer{dir: t.TempDir(), pages: map[string]int{}, unreadable: map[string]bool{}},
		client: &fakeClient{replies: map[string]string{}, fail: map[string]error{}},
		out:    out,
	}
	h.runner, err = NewRunner(cfg, h.raster, h.client, sink, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	h.runner.now = func() time.Time { return time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC) }
	return h
}

func (h *harness) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(h.out, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

func (h *harness) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(h.out, filepath.FromSlash(rel)))
	return err == nil
}

func contestPages(h *harness, name string) {
	h.raster.pages[name] = 3
	h.client.replies[name+":1"] = "## Problem A. Alpha\n\nTime limit: 1 second\nMemory limit: 256 megabytes\n\nStatement A."
	h.client.replies[name+":2"] = "More of A.\n\n## Problem B. Beta\n\n**Sample Input:**\n```text\n1 2\n```"
	h.client.replies[name+":3"] = "## Problem C. Gamma\n\nCompute $x^2$ and $$\\frac{a}{b$$."
}

func TestProcessFile_WritesAllArtifacts(t *testing.T) {
	h := newHarness(t, testConfig())
	contestPages(h, "finals.pdf")

	res, err := h.runner.ProcessFile(context.Background(), "/in/finals.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Pages != 3 {
		t.Errorf("expected 3 pages, got %d", res.Pages)
	}

	doc := h.read(t, "finals/finals.md")
	if n := strings.Count(doc, "<!-- page "); n != 3 {
		t.Errorf("expected 3 page markers, got %d", n)
	}
	if !strings.HasPrefix(doc, "# finals\n") || !strings.Contains(doc, "**Pages:** 3") {
		t.Errorf("unexpected document header:\n%s", doc[:80])
	}
	if a, b := strings.Index(doc, "Problem A"), strings.Index(doc, "Problem C"); a < 0 || b < a {
		t.Error("pages out of order in aggregated document")
	}

	if len(res.Problems) != 3 {
		t.Fatalf("expected 3 problems, got %d", len(res.Problems))
	}
	wantFiles := []string{"Problem_A_Alpha.md", "Problem_B_Beta.md", "Problem_C_Gamma.md"}
	for i, name := range wantFiles {
		if !h.exists("finals/problems/" + name) {
			t.Errorf("missing %s", name)
		}
		if filepath.Base(res.Files[i]) != name {
			t.Errorf("file %d: expected %s, got %s", i, name, res.Files[i])
		}
	}
	a := h.read(t, "finals/problems/Problem_A_Alpha.md")
	if !strings.Contains(a, "More of A.") || strings.Contains(a, "<!-- page") {
		t.Errorf("problem A should span the page break without markers:\n%s", a)
	}
	if res.Problems[0].TimeLimit != "1 second" || !res.Problems[1].HasSamples {
		t.Errorf("unexpected problem metadata: %+v / %+v", res.Problems[0], res.Problems[1])
	}

	index := h.read(t, "finals/index.md")
	ia := strings.Index(index, "[Problem A. Alpha](problems/Problem_A_Alpha.md)")
	ib := strings.Index(index, "[Problem B. Beta](problems/Problem_B_Beta.md)")
	ic := strings.Index(index, "[Problem C. Gamma](problems/Problem_C_Gamma.md)")
	if ia < 0 || ib < ia || ic < ib {
		t.Errorf("index entries missing or out of order:\n%s", index)
	}

	if len(res.Issues) == 0 {
		t.Fatal("expected a LaTeX issue for the unbalanced fraction")
	}
	if res.Issues[0].Category != latex.MismatchedBrace {
		t.Errorf("expected mismatched-brace, got %s", res.Issues[0].Category)
	}
}

func TestProcessFile_StagesCanBeDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.AutoSplit = false
	cfg.ValidateLatex = false
	h := newHarness(t, cfg)
	contestPages(h, "q.pdf")

	res, err := h.runner.ProcessFile(context.Background(), "q.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.exists("q/q.md") {
		t.Error("expected aggregated document")
	}
	if h.exists("q/problems") || h.exists("q/index.md") {
		t.Error("expected no split output")
	}
	if len(res.Issues) != 0 || len(res.Problems) != 0 {
		t.Errorf("expected no issues or problems, got %d/%d", len(res.Issues), len(res.Problems))
	}
}

func TestProcessFile_IssueLinesMatchDocument(t *testing.T) {
	h := newHarness(t, testConfig())
	h.raster.pages["lines.pdf"] = 2
	h.client.replies["lines.pdf:1"] = "## Problem A. One\n\nfine $y$"
	h.client.replies["lines.pdf:2"] = "cost $x + 1"

	res, err := h.runner.ProcessFile(context.Background(), "lines.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Issues) != 1 {
		t.Fatalf("expected 1 issue, got %v", res.Issues)
	}
	want := 0
	for i, line := range strings.Split(h.read(t, "lines/lines.md"), "\n") {
		if strings.Contains(line, "cost $x") {
			want = i + 1
		}
	}
	if want == 0 {
		t.Fatal("defective line missing from document")
	}
	if res.Issues[0].Line != want {
		t.Errorf("expected issue on line %d of the written file, got %d", want, res.Issues[0].Line)
	}
}

func TestProcessFile_NoIndex(t *testing.T) {
	cfg := testConfig()
	cfg.GenerateIndex = false
	h := newHarness(t, cfg)
	contestPages(h, "q.pdf")

	res, err := h.runner.ProcessFile(context.Background(), "q.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.exists("q/index.md") || res.Index != "" {
		t.Error("expected no index")
	}
	if len(res.Files) != 3 {
		t.Errorf("expected 3 problem files, got %d", len(res.Files))
	}
}

func TestProcessFile_RecognitionFailureAbortsFile(t *testing.T) {
	h := newHarness(t, testConfig())
	contestPages(h, "bad.pdf")
	h.client.fail["bad.pdf:2"] = errors.New("status 400: image rejected")

	_, err := h.runner.ProcessFile(context.Background(), "bad.pdf")
	if !errors.Is(err, recognize.ErrRecognitionFailed) {
		t.Fatalf("expected ErrRecognitionFailed, got %v", err)
	}
	if h.exists("bad/bad.md") {
		t.Error("no aggregated output expected after a recognition failure")
	}
	for _, c := range h.client.calls {
		if c == "bad.pdf:3" {
			t.Error("page 3 should not be attempted after page 2 failed")
		}
	}
}

func TestProcessFile_TransientErrorsAreRetried(t *testing.T) {
	h := newHarness(t, testConfig())
	h.raster.pages["r.pdf"] = 1
	h.client.replies["r.pdf:1"] = "## Problem A. Retry"
	flaky := &flakyClient{fakeClient: h.client, failures: 1}
	h.runner.recognizer.Client = flaky

	res, err := h.runner.ProcessFile(context.Background(), "r.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flaky.attempts != 2 || len(res.Problems) != 1 {
		t.Errorf("expected 2 attempts and 1 problem, got %d and %d", flaky.attempts, len(res.Problems))
	}
}

type flakyClient struct {
	*fakeClient
	failures int
	attempts int
}

func (c *flakyClient) Recognize(ctx context.Context, req recognize.Request) (string, error) {
	c.attempts++
	if c.attempts <= c.failures {
		return "", &recognize.RetryableError{StatusCode: 503, Message: "overloaded"}
	}
	return c.fakeClient.Recognize(ctx, req)
}

func TestProcessFile_UnreadableSource(t *testing.T) {
	h := newHarness(t, testConfig())
	h.raster.unreadable["x.pdf"] = true

	res, err := h.runner.ProcessFile(context.Background(), "x.pdf")
	if !errors.Is(err, render.ErrSourceUnreadable) {
		t.Fatalf("expected ErrSourceUnreadable, got %v", err)
	}
	if res == nil || res.Source != "x.pdf" {
		t.Errorf("expected a result describing the source, got %+v", res)
	}
	if len(h.client.calls) != 0 {
		t.Error("recognizer should not be called for an unreadable source")
	}
}

func TestProcessFile_NoHeadingPolicies(t *testing.T) {
	t.Run("fallback", func(t *testing.T) {
		h := newHarness(t, testConfig())
		h.raster.pages["notes.pdf"] = 1
		h.client.replies["notes.pdf:1"] = "Just an editorial, no problem headings."

		res, err := h.runner.ProcessFile(context.Background(), "notes.pdf")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Problems) != 1 || res.Problems[0].ID != "1" {
			t.Fatalf("expected a single fallback problem, got %+v", res.Problems)
		}
		body := h.read(t, "notes/problems/Problem_1.md")
		if !strings.Contains(body, "Just an editorial") {
			t.Errorf("fallback problem should hold the whole document:\n%s", body)
		}
	})

	t.Run("strict", func(t *testing.T) {
		cfg := testConfig()
		cfg.NoMatchPolicy = config.PolicyStrict
		h := newHarness(t, cfg)
		h.raster.pages["notes.pdf"] = 1
		h.client.replies["notes.pdf:1"] = "Just an editorial, no problem headings."

		_, err := h.runner.ProcessFile(context.Background(), "notes.pdf")
		if !errors.Is(err, problem.ErrNoProblemsFound) {
			t.Fatalf("expected ErrNoProblemsFound, got %v", err)
		}
		if !h.exists("notes/notes.md") {
			t.Error("aggregated document should be kept when splitting fails")
		}
		if h.exists("notes/problems") {
			t.Error("no problem files expected")
		}
	})
}

func TestProcessFile_DuplicateHeadingsGetDistinctFiles(t *testing.T) {
	h := newHarness(t, testConfig())
	h.raster.pages["dup.pdf"] = 2
	h.client.replies["dup.pdf:1"] = "## Problem A. Same\nfirst"
	h.client.replies["dup.pdf:2"] = "## Problem A. Same\nsecond"

	res, err := h.runner.ProcessFile(context.Background(), "dup.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Problems) != 2 {
		t.Fatalf("expected 2 problems, got %d", len(res.Problems))
	}
	if !strings.Contains(h.read(t, "dup/problems/Problem_A_Same.md"), "first") ||
		!strings.Contains(h.read(t, "dup/problems/Problem_A_Same_2.md"), "second") {
		t.Error("expected both duplicates to be written")
	}
}

func TestProcessFile_CancelDuringRecognition(t *testing.T) {
	h := newHarness(t, testConfig())
	contestPages(h, "c.pdf")
	ctx, cancel := context.WithCancel(context.Background())
	h.runner.recognizer.Client = &cancelingClient{fakeClient: h.client, cancel: cancel, at: "c.pdf:2"}

	_, err := h.runner.ProcessFile(ctx, "c.pdf")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, recognize.ErrRecognitionFailed) {
		t.Error("cancellation must not be reported as a recognition failure")
	}
}

type cancelingClient struct {
	*fakeClient
	cancel context.CancelFunc
	at     string
}

func (c *cancelingClient) Recognize(ctx context.Context, req recognize.Request) (string, error) {
	if string(req.Image) == c.at {
		c.cancel()
		return "", ctx.Err()
	}
	return c.fakeClient.Recognize(ctx, req)
}

func TestProcessFile_TextHintReachesPrompt(t *testing.T) {
	cfg := testConfig()
	cfg.TextHint = true
	h := newHarness(t, cfg)
	h.raster.pages["h.pdf"] = 1
	h.runner.textLayer = func(string) ([]string, error) { return []string{"3\n1 2 3"}, nil }
	rec := &promptRecorder{fakeClient: h.client}
	h.runner.recognizer.Client = rec

	if _, err := h.runner.ProcessFile(context.Background(), "h.pdf"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.prompts) != 1 || !strings.Contains(rec.prompts[0], "3\n1 2 3") {
		t.Errorf("expected text layer in prompt, got %q", rec.prompts)
	}
}

type promptRecorder struct {
	*fakeClient
	prompts []string
}

func (c *promptRecorder) Recognize(ctx context.Context, req recognize.Request) (string, error) {
	c.prompts = append(c.prompts, req.Prompt)
	return c.fakeClient.Recognize(ctx, req)
}

func TestNewRunner_UnknownPromptTag(t *testing.T) {
	cfg := testConfig()
	cfg.PromptTag = "missing"
	sink, _ := output.NewLocalSink(t.TempDir())
	if _, err := NewRunner(cfg, &fakeRasterizer{}, &fakeClient{}, sink, nil); err == nil {
		t.Fatal("expected error for unknown prompt tag")
	}
}
