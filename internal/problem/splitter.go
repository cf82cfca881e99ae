package problem

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/dgallion1/cpextract/internal/markdown"
	"golang.org/x/text/width"
)

// ErrNoProblemsFound is returned by a strict Splitter when no heading matches.
var ErrNoProblemsFound = errors.New("no problem headings found")

// Splitter partitions an aggregated document into problems at heading lines.
type Splitter struct {
	pattern    *regexp.Regexp
	strict     bool
	fallbackID string
	log        *slog.Logger
}

// NewSplitter compiles pattern, whose first participating capture group is the
// problem identifier and the group after it the optional title. With strict set, a document
// without headings yields ErrNoProblemsFound; otherwise it becomes a single
// problem identified by fallbackID.
func NewSplitter(pattern string, strict bool, fallbackID string, log *slog.Logger) (*Splitter, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile heading pattern: %w", err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("heading pattern must capture the problem identifier")
	}
	if fallbackID == "" {
		fallbackID = "1"
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Splitter{pattern: re, strict: strict, fallbackID: fallbackID, log: log}, nil
}

type heading struct {
	id, title   string
	start, body int // offsets of the heading line and of the line after it
}

// Split returns the problems of text in document order. Duplicate
// identifiers each start a new problem. Text before the first heading is
// dropped.
func (s *Splitter) Split(text string) ([]Problem, error) {
	heads := s.headings(text)

	if len(heads) == 0 {
		if s.strict {
			return nil, ErrNoProblemsFound
		}
		body := strings.TrimSpace(text)
		if body == "" {
			s.log.Warn("document is empty, nothing to split")
			return []Problem{}, nil
		}
		s.log.Info("no problem headings found, using fallback problem", "id", s.fallbackID)
		return []Problem{newProblem(s.fallbackID, "", body, 0, len(text), true)}, nil
	}

	if lead := strings.TrimSpace(text[:heads[0].start]); lead != "" {
		s.log.Debug("dropping text before first problem heading", "bytes", len(lead))
	}

	problems := make([]Problem, 0, len(heads))
	for i, h := range heads {
		end := len(text)
		if i+1 < len(heads) {
			end = heads[i+1].start
		}
		body := strings.TrimSpace(text[h.body:end])
		problems = append(problems, newProblem(h.id, h.title, body, h.start, end, false))
	}
	return problems, nil
}

// headings scans text line by line, skipping lines inside code blocks.
func (s *Splitter) headings(text string) []heading {
	code := markdown.CodeRanges([]byte(text))

	var out []heading
	for start := 0; start < len(text); {
		end := strings.IndexByte(text[start:], '\n')
		next := len(text)
		if end >= 0 {
			end += start
			next = end + 1
		} else {
			end = len(text)
		}
		line := strings.TrimSuffix(text[start:end], "\r")

		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		if !code.Contains(start + indent) {
			if id, title, ok := s.match(line); ok {
				out = append(out, heading{id: id, title: title, start: start, body: next})
			}
		}
		start = next
	}
	return out
}

// match folds full-width characters before applying the pattern so that
// "Ｐｒｏｂｌｅｍ Ａ" is recognized like "Problem A".
func (s *Splitter) match(line string) (id, title string, ok bool) {
	folded := width.Fold.String(line)
	m := s.pattern.FindStringSubmatch(folded)
	if m == nil {
		return "", "", false
	}
	// With alternation the first non-empty group is the identifier.
	for i := 1; i < len(m); i++ {
		if id = strings.TrimSpace(m[i]); id == "" {
			continue
		}
		if i+1 < len(m) {
			title = cleanTitle(m[i+1])
		}
		return id, title, true
	}
	return "", "", false
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*_")
	s = strings.TrimLeft(s, ".:-–— ")
	return strings.TrimSpace(s)
}
