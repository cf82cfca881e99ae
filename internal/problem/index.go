package problem

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
)

// IndexEntry is one line of an index document.
type IndexEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Path  string `json:"path"`
}

// Entries builds index entries for problems written under dir, keeping the
// split order.
func Entries(problems []Problem, dir string) []IndexEntry {
	names := FileNames(problems)
	out := make([]IndexEntry, 0, len(problems))
	for i, p := range problems {
		out = append(out, IndexEntry{
			ID:    p.ID,
			Title: p.Title,
			Path:  path.Join(dir, names[i]),
		})
	}
	return out
}

// FileNames returns one artifact name per problem. Repeated names get a
// numeric suffix so duplicate headings do not overwrite each other.
func FileNames(problems []Problem) []string {
	names := make([]string, len(problems))
	seen := make(map[string]int, len(problems))
	for i, p := range problems {
		name := p.FileName()
		seen[name]++
		if n := seen[name]; n > 1 {
			name = strings.TrimSuffix(name, ".md") + "_" + strconv.Itoa(n) + ".md"
		}
		names[i] = name
	}
	return names
}

// Index renders an index document listing entries in the given order.
func Index(title string, entries []IndexEntry) string {
	if title == "" {
		title = "Problem Index"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)
	sb.WriteString("## Problems\n\n")
	for _, e := range entries {
		label := "Problem " + e.ID
		if e.Title != "" {
			label += ". " + e.Title
		}
		fmt.Fprintf(&sb, "- [%s](%s)\n", escapeLinkText(label), escapeLinkDest(e.Path))
	}
	return sb.String()
}

func escapeLinkText(s string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`).Replace(s)
}

func escapeLinkDest(s string) string {
	return strings.NewReplacer(" ", "%20", "(", "%28", ")", "%29").Replace(s)
}

// Stats summarizes a contest.
type Stats struct {
	Problems     int            `json:"problems"`
	WithSamples  int            `json:"with_samples"`
	TimeLimits   map[string]int `json:"time_limits"`
	MemoryLimits map[string]int `json:"memory_limits"`
}

// ContestStats tallies problem count, samples and limits.
func ContestStats(problems []Problem) Stats {
	st := Stats{
		Problems:     len(problems),
		TimeLimits:   map[string]int{},
		MemoryLimits: map[string]int{},
	}
	for _, p := range problems {
		if p.HasSamples {
			st.WithSamples++
		}
		st.TimeLimits[p.TimeLimit]++
		st.MemoryLimits[p.MemoryLimit]++
	}
	return st
}

// Summary renders Stats as a short Markdown block.
func (s Stats) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**Problems:** %d (%d with samples)\n", s.Problems, s.WithSamples)
	if len(s.TimeLimits) > 0 {
		fmt.Fprintf(&sb, "**Time limits:** %s\n", tally(s.TimeLimits))
	}
	if len(s.MemoryLimits) > 0 {
		fmt.Fprintf(&sb, "**Memory limits:** %s\n", tally(s.MemoryLimits))
	}
	return sb.String()
}

func tally(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s × %d", k, m[k])
	}
	return strings.Join(parts, ", ")
}
