// Package markdown locates code regions in model output so that math and
// heading scanners can ignore them.
package markdown

import (
	"sort"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Range is a half-open byte range [Start, End) of the source.
type Range struct {
	Start int
	End   int
}

// Ranges is a sorted, non-overlapping set of byte ranges.
type Ranges []Range

// Contains reports whether offset falls inside any range.
func (rs Ranges) Contains(offset int) bool {
	i := sort.Search(len(rs), func(i int) bool { return rs[i].End > offset })
	return i < len(rs) && rs[i].Start <= offset
}

// Next returns the end of the range containing offset, or -1.
func (rs Ranges) Next(offset int) int {
	i := sort.Search(len(rs), func(i int) bool { return rs[i].End > offset })
	if i < len(rs) && rs[i].Start <= offset {
		return rs[i].End
	}
	return -1
}

// CodeRanges returns the byte ranges covered by fenced code blocks, indented
// code blocks and inline code spans.
func CodeRanges(src []byte) Ranges {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var out Ranges
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := node.Lines()
			if lines.Len() > 0 {
				out = append(out, Range{Start: lines.At(0).Start, End: lines.At(lines.Len() - 1).Stop})
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeSpan:
			start, end := -1, -1
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				t, ok := c.(*ast.Text)
				if !ok {
					continue
				}
				if start < 0 {
					start = t.Segment.Start
				}
				end = t.Segment.Stop
			}
			if start >= 0 && end > start {
				out = append(out, Range{Start: start, End: end})
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return merge(out)
}

func merge(rs Ranges) Ranges {
	if len(rs) < 2 {
		return rs
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].Start < rs[j].Start })
	merged := rs[:1]
	for _, r := range rs[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}
