package document

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Document is the ordered per-page text recognized from one PDF. It is not
// modified after Aggregate returns it.
type Document struct {
	source      string
	pages       []string
	generatedAt time.Time
}

// Aggregate builds a Document from page texts given in physical page order.
// Texts are NFC-normalized so that visually identical headings compare equal.
func Aggregate(source string, pages []string, generatedAt time.Time) *Document {
	d := &Document{
		source:      source,
		pages:       make([]string, len(pages)),
		generatedAt: generatedAt,
	}
	for i, p := range pages {
		d.pages[i] = norm.NFC.String(p)
	}
	return d
}

// Source returns the source file name.
func (d *Document) Source() string { return d.source }

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return len(d.pages) }

// GeneratedAt returns the aggregation timestamp.
func (d *Document) GeneratedAt() time.Time { return d.generatedAt }

// Page returns the text of the 1-based page n.
func (d *Document) Page(n int) string {
	if n < 1 || n > len(d.pages) {
		return ""
	}
	return d.pages[n-1]
}

// Pages returns a copy of the page texts.
func (d *Document) Pages() []string {
	out := make([]string, len(d.pages))
	copy(out, d.pages)
	return out
}

// Title is the source file name without directory and extension.
func (d *Document) Title() string {
	base := filepath.Base(d.source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// PageMarker is the separator line emitted before page n.
func PageMarker(n int) string {
	return fmt.Sprintf("<!-- page %d -->", n)
}

var markerRe = regexp.MustCompile(`(?m)^<!-- page \d+ -->\n`)

// Text joins the pages in order, each preceded by its marker line.
func (d *Document) Text() string {
	var sb strings.Builder
	for i, p := range d.pages {
		sb.WriteString(PageMarker(i + 1))
		sb.WriteString("\n")
		sb.WriteString(p)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Markdown renders the aggregated artifact: a short header followed by Text.
func (d *Document) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", d.Title())
	fmt.Fprintf(&sb, "**Source:** %s\n", filepath.Base(d.source))
	fmt.Fprintf(&sb, "**Pages:** %d\n", len(d.pages))
	fmt.Fprintf(&sb, "**Generated:** %s\n\n", d.generatedAt.UTC().Format(time.RFC3339))
	sb.WriteString("---\n\n")
	sb.WriteString(d.Text())
	return sb.String()
}

// SplitPages recovers page texts from the output of Text or Markdown.
// Anything before the first marker is ignored.
func SplitPages(text string) []string {
	locs := markerRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{}
	}
	pages := make([]string, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		pages[i] = strings.TrimSuffix(text[loc[1]:end], "\n")
	}
	return pages
}

// Body returns the recognized content of text with page markers removed,
// pages joined by a blank line. Text without markers is returned unchanged.
func Body(text string) string {
	if !markerRe.MatchString(text) {
		return text
	}
	return strings.Join(SplitPages(text), "\n\n")
}
