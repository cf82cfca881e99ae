// Package latex checks MathJax-flavoured Markdown for structurally broken math.
// It reports problems; it never rewrites the input.
package latex

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dgallion1/cpextract/internal/markdown"
)

// Category classifies a validation issue.
type Category string

const (
	UnbalancedDelimiter Category = "unbalanced-delimiter"
	UnclosedEnvironment Category = "unclosed-environment"
	MismatchedBrace     Category = "mismatched-brace"
)

// Issue is one syntactic defect. Line is 1-based, Offset is a byte offset
// into the validated text.
type Issue struct {
	Line     int      `json:"line"`
	Offset   int      `json:"offset"`
	Category Category `json:"category"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("line %d: %s: %s", i.Line, i.Category, i.Message)
}

// mathEnvironments open a math span when they appear outside $...$.
var mathEnvironments = map[string]bool{
	"equation": true, "equation*": true,
	"align": true, "align*": true,
	"aligned": true, "alignat": true, "alignat*": true,
	"gather": true, "gather*": true,
	"multline": true, "multline*": true,
	"eqnarray": true, "eqnarray*": true,
	"displaymath": true, "math": true,
}

type span struct {
	kind   string // "$", "$$", `\(`, `\[` or an environment name
	start  int
	braces []int // offsets of unmatched '{'
}

type env struct {
	name  string
	start int
	math  bool // opened a math span
}

type scanner struct {
	src        string
	code       markdown.Ranges
	lineStarts []int

	math   *span
	envs   []env
	issues []Issue
}

// Validate scans text and returns every issue found, ordered by position.
// The result is deterministic for a given input.
func Validate(text string) []Issue {
	s := &scanner{
		src:        text,
		code:       markdown.CodeRanges([]byte(text)),
		lineStarts: lineStarts(text),
	}
	s.run()
	sort.SliceStable(s.issues, func(a, b int) bool {
		return s.issues[a].Offset < s.issues[b].Offset
	})
	if s.issues == nil {
		return []Issue{}
	}
	return s.issues
}

func (s *scanner) run() {
	src := s.src
	for i := 0; i < len(src); {
		if end := s.code.Next(i); end >= 0 {
			i = end
			continue
		}
		switch c := src[i]; c {
		case '\\':
			i = s.backslash(i)
		case '$':
			if i+1 < len(src) && src[i+1] == '$' {
				s.dollar(i, "$$")
				i += 2
			} else {
				s.dollar(i, "$")
				i++
			}
		case '{':
			if s.math != nil {
				s.math.braces = append(s.math.braces, i)
			}
			i++
		case '}':
			if s.math != nil {
				if n := len(s.math.braces); n > 0 {
					s.math.braces = s.math.braces[:n-1]
				} else {
					s.add(i, MismatchedBrace, "unexpected '}' with no matching '{' in math span")
				}
			}
			i++
		case '\n':
			// Inline math cannot cross a paragraph break.
			if s.math != nil && s.math.kind == "$" && strings.HasPrefix(strings.TrimLeft(src[i+1:], " \t"), "\n") {
				s.add(s.math.start, UnbalancedDelimiter, "inline math opened with '$' is not closed before the paragraph ends")
				s.math = nil
			}
			i++
		default:
			i++
		}
	}

	if s.math != nil {
		s.add(s.math.start, UnbalancedDelimiter, fmt.Sprintf("math opened with %s is never closed", describe(s.math.kind)))
		s.math = nil
	}
	for _, e := range s.envs {
		s.add(e.start, UnclosedEnvironment, fmt.Sprintf(`\begin{%s} is never closed`, e.name))
	}
	s.envs = nil
}

func (s *scanner) backslash(i int) int {
	src := s.src
	if i+1 >= len(src) {
		return i + 1
	}
	switch src[i+1] {
	case '(', '[':
		kind := src[i : i+2]
		if s.math == nil {
			s.math = &span{kind: kind, start: i}
		}
		return i + 2
	case ')', ']':
		open := `\(`
		if src[i+1] == ']' {
			open = `\[`
		}
		switch {
		case s.math != nil && s.math.kind == open:
			s.closeMath()
		case s.math == nil:
			s.add(i, UnbalancedDelimiter, fmt.Sprintf("%s without matching %s", src[i:i+2], open))
		}
		return i + 2
	}

	if name, end, ok := command(src, i, "begin"); ok {
		s.begin(name, i)
		return end
	}
	if name, end, ok := command(src, i, "end"); ok {
		s.end(name, i)
		return end
	}
	// Any other escape, including \$, \{ and \}, consumes the next byte.
	return i + 2
}

func (s *scanner) dollar(i int, kind string) {
	switch {
	case s.math == nil:
		s.math = &span{kind: kind, start: i}
	case s.math.kind == kind:
		s.closeMath()
	case s.math.kind == "$" && kind == "$$":
		// "$a$$b$": close the inline span and open another at the second '$'.
		s.closeMath()
		s.math = &span{kind: "$", start: i + 1}
	default:
		s.add(i, UnbalancedDelimiter, fmt.Sprintf("%s inside math opened with %s", kind, describe(s.math.kind)))
	}
}

func (s *scanner) closeMath() {
	if n := len(s.math.braces); n > 0 {
		s.add(s.math.braces[0], MismatchedBrace, fmt.Sprintf("%d unclosed '{' in math span", n))
	}
	s.math = nil
}

func (s *scanner) begin(name string, i int) {
	e := env{name: name, start: i}
	if s.math == nil && mathEnvironments[name] {
		s.math = &span{kind: name, start: i}
		e.math = true
	}
	s.envs = append(s.envs, e)
}

func (s *scanner) end(name string, i int) {
	idx := -1
	for k := len(s.envs) - 1; k >= 0; k-- {
		if s.envs[k].name == name {
			idx = k
			break
		}
	}
	if idx < 0 {
		s.add(i, UnclosedEnvironment, fmt.Sprintf(`\end{%s} without matching \begin{%s}`, name, name))
		return
	}
	for k := len(s.envs) - 1; k > idx; k-- {
		inner := s.envs[k]
		s.add(inner.start, UnclosedEnvironment, fmt.Sprintf(`\begin{%s} is not closed before \end{%s}`, inner.name, name))
		if inner.math && s.math != nil && s.math.kind == inner.name {
			s.math = nil
		}
	}
	closing := s.envs[idx]
	s.envs = s.envs[:idx]
	if closing.math && s.math != nil && s.math.kind == closing.name {
		s.closeMath()
	}
}

func (s *scanner) add(offset int, cat Category, msg string) {
	s.issues = append(s.issues, Issue{
		Line:     s.line(offset),
		Offset:   offset,
		Category: cat,
		Message:  msg,
	})
}

func (s *scanner) line(offset int) int {
	return sort.Search(len(s.lineStarts), func(i int) bool { return s.lineStarts[i] > offset })
}

// command matches \name{arg} at i and returns arg and the offset after '}'.
func command(src string, i int, name string) (string, int, bool) {
	prefix := `\` + name + "{"
	if !strings.HasPrefix(src[i:], prefix) {
		return "", 0, false
	}
	rest := src[i+len(prefix):]
	j := strings.IndexAny(rest, "}\n")
	if j < 0 || rest[j] != '}' {
		return "", 0, false
	}
	arg := strings.TrimSpace(rest[:j])
	if arg == "" {
		return "", 0, false
	}
	return arg, i + len(prefix) + j + 1, true
}

func lineStarts(text string) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func describe(kind string) string {
	switch kind {
	case "$", "$$", `\(`, `\[`:
		return "'" + kind + "'"
	}
	return `\begin{` + kind + "}"
}
