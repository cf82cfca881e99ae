package recognize

import (
	"regexp"
	"strings"
)

var (
	markdownOpenRe = regexp.MustCompile("```markdown[ \\t]*\\r?\\n")
	bareFenceRe    = regexp.MustCompile("(?m)^[ \\t]*```[ \\t]*\\r?$")
)

// ExtractMarkdown returns the body of the ```markdown fenced block in reply,
// or the trimmed reply when there is none. The block usually contains nested
// sample fences, so it runs to the last bare closing fence. A reply cut off
// before any closing fence yields everything after the opener.
func ExtractMarkdown(reply string) string {
	loc := markdownOpenRe.FindStringIndex(reply)
	if loc == nil {
		return strings.TrimSpace(reply)
	}
	body := reply[loc[1]:]

	closers := bareFenceRe.FindAllStringIndex(body, -1)
	if len(closers) == 0 {
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(body[:closers[len(closers)-1][0]])
}
