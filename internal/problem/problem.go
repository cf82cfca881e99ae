package problem

import (
	"fmt"
	"regexp"
	"strings"
)

// Unknown is used for limits that the problem text does not state.
const Unknown = "Unknown"

// Problem is one contest problem cut out of an aggregated document.
type Problem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	TimeLimit   string `json:"time_limit"`
	MemoryLimit string `json:"memory_limit"`
	HasSamples  bool   `json:"has_samples"`
	// Fallback is set when the whole document became one problem because no
	// heading was recognized.
	Fallback bool `json:"fallback,omitempty"`

	// Byte span of the problem (heading included) in the split text.
	Start int `json:"start"`
	End   int `json:"end"`
}

var (
	timeLimitRe   = regexp.MustCompile(`(?im)^[\s>*_-]*time\s+limit(?:\s+per\s+test)?[\s*]*[:：]\s*\**\s*(.+?)[\s*]*$`)
	memoryLimitRe = regexp.MustCompile(`(?im)^[\s>*_-]*memory\s+limit(?:\s+per\s+test)?[\s*]*[:：]\s*\**\s*(.+?)[\s*]*$`)
	samplesRe     = regexp.MustCompile(`(?i)sample\s+input|sample\s+output|样例输入|样例输出`)
)

func newProblem(id, title, body string, start, end int, fallback bool) Problem {
	return Problem{
		ID:          id,
		Title:       title,
		Body:        body,
		TimeLimit:   firstGroup(timeLimitRe, body),
		MemoryLimit: firstGroup(memoryLimitRe, body),
		HasSamples:  samplesRe.MatchString(body),
		Fallback:    fallback,
		Start:       start,
		End:         end,
	}
}

func firstGroup(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			return v
		}
	}
	return Unknown
}

// Heading is the display heading, e.g. "Problem A. Two Sum".
func (p Problem) Heading() string {
	if p.Title == "" {
		return "Problem " + p.ID
	}
	return fmt.Sprintf("Problem %s. %s", p.ID, p.Title)
}

// FileName is the artifact name, Problem_<id>_<title>.md.
func (p Problem) FileName() string {
	id := SanitizeFileName(p.ID)
	if id == "" {
		id = "X"
	}
	title := SanitizeFileName(p.Title)
	if title == "" {
		return "Problem_" + id + ".md"
	}
	return "Problem_" + id + "_" + title + ".md"
}

// Markdown renders the problem as a standalone document.
func (p Problem) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", p.Heading())
	fmt.Fprintf(&sb, "**Time Limit:** %s\n", p.TimeLimit)
	fmt.Fprintf(&sb, "**Memory Limit:** %s\n\n", p.MemoryLimit)
	sb.WriteString("---\n\n")
	if p.Body != "" {
		sb.WriteString(p.Body)
		sb.WriteString("\n")
	}
	return sb.String()
}

var (
	latexCommand    = regexp.MustCompile(`\\[A-Za-z]+`)
	unsafeFileChars = regexp.MustCompile("[<>:\"/\\\\|?*$^{}`~\\x00-\\x1f]")
)

// SanitizeFileName drops characters that are invalid or awkward in file
// names, including LaTeX commands and math markup, turns spaces into
// underscores and keeps at most 50 runes. Leading and trailing dots and
// underscores are trimmed.
func SanitizeFileName(s string) string {
	s = latexCommand.ReplaceAllString(s, " ")
	s = unsafeFileChars.ReplaceAllString(strings.TrimSpace(s), "")
	s = strings.Join(strings.Fields(s), "_")
	if r := []rune(s); len(r) > 50 {
		s = string(r[:50])
	}
	return strings.Trim(s, "._")
}
