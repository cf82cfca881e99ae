package document

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

var fixedTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func TestAggregate_SeparatorCountAndOrder(t *testing.T) {
	pages := []string{
		"## Problem A. Sum\n\nCompute $a+b$.",
		"",
		"**Sample Input:**\n\n```text\n1 2\n```\n",
		"## Problem B. Product",
	}
	doc := Aggregate("contest.pdf", pages, fixedTime)

	text := doc.Text()
	if got := strings.Count(text, "<!-- page "); got != len(pages) {
		t.Fatalf("expected %d separators, got %d", len(pages), got)
	}

	last := -1
	for i := range pages {
		idx := strings.Index(text, PageMarker(i+1))
		if idx <= last {
			t.Fatalf("expected marker %d after offset %d, got %d", i+1, last, idx)
		}
		last = idx
	}

	if got := SplitPages(text); !reflect.DeepEqual(got, pages) {
		t.Errorf("round trip mismatch:\nwant %q\n got %q", pages, got)
	}
	if got := SplitPages(doc.Markdown()); !reflect.DeepEqual(got, pages) {
		t.Errorf("round trip through Markdown mismatch:\nwant %q\n got %q", pages, got)
	}
}

func TestAggregate_Empty(t *testing.T) {
	doc := Aggregate("empty.pdf", nil, fixedTime)
	if doc.PageCount() != 0 {
		t.Errorf("expected 0 pages, got %d", doc.PageCount())
	}
	if doc.Text() != "" {
		t.Errorf("expected empty text, got %q", doc.Text())
	}
	if got := SplitPages(doc.Text()); len(got) != 0 {
		t.Errorf("expected no pages, got %q", got)
	}
}

func TestAggregate_Immutable(t *testing.T) {
	pages := []string{"one", "two"}
	doc := Aggregate("x.pdf", pages, fixedTime)
	pages[0] = "changed"
	if doc.Page(1) != "one" {
		t.Errorf("expected document to keep its own copy, got %q", doc.Page(1))
	}
	got := doc.Pages()
	got[1] = "changed"
	if doc.Page(2) != "two" {
		t.Errorf("expected Pages to return a copy, got %q", doc.Page(2))
	}
	if doc.Page(0) != "" || doc.Page(3) != "" {
		t.Error("expected out-of-range pages to be empty")
	}
}

func TestAggregate_NormalizesNFC(t *testing.T) {
	doc := Aggregate("x.pdf", []string{"Proble\u0301me"}, fixedTime)
	if doc.Page(1) != "Probl\u00e9me" {
		t.Errorf("expected NFC text, got %q", doc.Page(1))
	}
}

func TestMarkdown_Header(t *testing.T) {
	doc := Aggregate("/tmp/in/ICPC 2025.pdf", []string{"body"}, fixedTime)
	md := doc.Markdown()
	for _, want := range []string{
		"# ICPC 2025\n",
		"**Source:** ICPC 2025.pdf\n",
		"**Pages:** 1\n",
		"**Generated:** 2025-03-14T09:26:53Z\n",
		"---\n",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected markdown to contain %q, got:\n%s", want, md)
		}
	}
	if doc.Title() != "ICPC 2025" {
		t.Errorf("expected title %q, got %q", "ICPC 2025", doc.Title())
	}
}

func TestBody_StripsMarkers(t *testing.T) {
	doc := Aggregate("set.pdf", []string{"## Problem A. X\nfoo", "bar"}, time.Unix(0, 0))

	got := Body(doc.Markdown())
	if got != "## Problem A. X\nfoo\n\nbar" {
		t.Errorf("unexpected body %q", got)
	}
	if strings.Contains(got, "<!--") {
		t.Error("markers left in body")
	}
	if plain := "no markers\nhere"; Body(plain) != plain {
		t.Errorf("expected unmarked text unchanged, got %q", Body(plain))
	}
}
