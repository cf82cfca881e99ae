package recognize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CompetitionPrompt is the built-in instruction for contest problem pages.
// {page} and {total} are replaced with the 1-based page number and the page
// count.
const CompetitionPrompt = `Carefully analyze this image of a programming contest problem set and extract all of its content exactly. This is page {page} of {total}.

Extract everything on the page, whatever it contains: statements, samples, constraints and notes.

Formatting rules:
1. Problem headings
   - When the page starts a new problem (a bold title such as "Problem X. Name"), write it as: ## Problem X. Name
   - A running page header such as the contest name and year is not a new problem.
   - If the page only continues a problem or holds its samples, extract the content without adding a heading.

2. Samples (most important, never omit them)
   - Put every concrete input and output in its own fenced block opened with ` + "```text" + ` and closed with ` + "```" + `.
   - Label them as **Sample Input:** / **Sample Output:** or **Input:** / **Output:** as on the page.
   - Convert sample tables into consecutive input and output blocks. Do not use Markdown tables.

3. Math
   - Use MathJax dollar syntax: inline $formula$, display $$formula$$.
   - Subscripts and superscripts: $x_i$, $x^2$, $\sum_{i=1}^n$. Fractions: $\frac{a}{b}$.
   - Never use \( \) or \[ \].

4. Variables and constants go inside $...$, for example $n$, $W$, $10^9 + 7$.

5. Keep constraints in their original form, for example $(1 \leq n \leq 10^5)$.

Never omit:
- any sample input or output
- data range constraints
- time and memory limits

Output the converted Markdown with LaTeX directly, starting with ` + "```markdown" + ` and ending with ` + "```" + `.`

const textHintHeader = `The embedded text layer of this page is given below as a reference. Sample data must match it character for character; trust the image for layout and math.

Reference text:
` + "```" + `
%s
` + "```"

// PromptSet resolves prompt templates by tag.
type PromptSet struct {
	prompts map[string]string
}

// NewPromptSet returns the built-in prompts overlaid with custom ones.
func NewPromptSet(custom map[string]string) *PromptSet {
	prompts := map[string]string{"competition": CompetitionPrompt}
	for tag, text := range custom {
		if strings.TrimSpace(text) == "" {
			continue
		}
		prompts[tag] = text
	}
	return &PromptSet{prompts: prompts}
}

// Tags lists the available prompt tags in sorted order.
func (s *PromptSet) Tags() []string {
	tags := make([]string, 0, len(s.prompts))
	for tag := range s.prompts {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Has reports whether tag is defined.
func (s *PromptSet) Has(tag string) bool {
	_, ok := s.prompts[tag]
	return ok
}

// Build renders the prompt for one page. page is 1-based. A non-empty hint is
// appended as reference text.
func (s *PromptSet) Build(tag string, page, total int, hint string) (string, error) {
	tmpl, ok := s.prompts[tag]
	if !ok {
		return "", fmt.Errorf("unknown prompt tag %q (have %s)", tag, strings.Join(s.Tags(), ", "))
	}
	prompt := strings.NewReplacer(
		"{page}", strconv.Itoa(page),
		"{total}", strconv.Itoa(total),
	).Replace(tmpl)

	if hint = strings.TrimSpace(hint); hint != "" {
		prompt += "\n\n" + fmt.Sprintf(textHintHeader, hint)
	}
	return prompt, nil
}
