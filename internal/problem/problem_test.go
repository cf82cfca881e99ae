package problem

import (
	"strings"
	"testing"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Two Sum", "Two_Sum"},
		{`a<b>c:d"e/f\|g?h*i`, "abcdefghi"},
		{"  spaced   out  ", "spaced_out"},
		{strings.Repeat("x", 60), strings.Repeat("x", 50)},
		{strings.Repeat("题", 60), strings.Repeat("题", 50)},
		{"", ""},
		{`Sum of $\sum a_i$`, "Sum_of_a_i"},
		{`$\frac{a}{b}$`, "ab"},
		{"x^{2} mod p.", "x2_mod_p"},
		{"...hidden...", "hidden"},
		{"`code`~", "code"},
		{strings.Repeat("a", 49) + ". b", strings.Repeat("a", 49)},
	}
	for _, tt := range tests {
		if got := SanitizeFileName(tt.in); got != tt.want {
			t.Errorf("SanitizeFileName(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestProblemFileName(t *testing.T) {
	p := Problem{ID: "A", Title: "Two Sum: Easy?"}
	if got := p.FileName(); got != "Problem_A_Two_Sum_Easy.md" {
		t.Errorf("unexpected file name %q", got)
	}
	p = Problem{ID: "C", Title: `$\alpha$.`}
	if got := p.FileName(); got != "Problem_C.md" {
		t.Errorf("unexpected file name %q", got)
	}
	p = Problem{ID: "7"}
	if got := p.FileName(); got != "Problem_7.md" {
		t.Errorf("unexpected file name %q", got)
	}
}

func TestProblemMarkdown_Standalone(t *testing.T) {
	p := newProblem("B", "Paths", "Time limit: 2 seconds\n\nCount paths.", 0, 0, false)
	md := p.Markdown()
	for _, want := range []string{
		"# Problem B. Paths\n",
		"**Time Limit:** 2 seconds\n",
		"**Memory Limit:** Unknown\n",
		"---\n\n",
		"Count paths.\n",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected markdown to contain %q, got:\n%s", want, md)
		}
	}
}

func TestIndex_PreservesOrder(t *testing.T) {
	problems := []Problem{
		{ID: "A", Title: "Two Sum"},
		{ID: "B", Title: "Paths"},
		{ID: "C", Title: "Strings"},
	}
	idx := Index("Regional 2025", Entries(problems, "problems"))

	if !strings.HasPrefix(idx, "# Regional 2025\n") {
		t.Errorf("unexpected header: %q", idx)
	}
	wantLines := []string{
		"- [Problem A. Two Sum](problems/Problem_A_Two_Sum.md)",
		"- [Problem B. Paths](problems/Problem_B_Paths.md)",
		"- [Problem C. Strings](problems/Problem_C_Strings.md)",
	}
	last := -1
	for _, w := range wantLines {
		i := strings.Index(idx, w)
		if i < 0 {
			t.Fatalf("expected index to contain %q, got:\n%s", w, idx)
		}
		if i <= last {
			t.Errorf("expected %q after previous entry", w)
		}
		last = i
	}
}

func TestIndex_Empty(t *testing.T) {
	idx := Index("", nil)
	if !strings.HasPrefix(idx, "# Problem Index\n") {
		t.Errorf("unexpected header: %q", idx)
	}
	if strings.Contains(idx, "- [") {
		t.Errorf("expected empty listing, got %q", idx)
	}
}

func TestIndex_EscapesLinks(t *testing.T) {
	idx := Index("x", []IndexEntry{{ID: "A", Title: "Arrays [hard]", Path: "my dir/Problem_A.md"}})
	if !strings.Contains(idx, `- [Problem A. Arrays \[hard\]](my%20dir/Problem_A.md)`) {
		t.Errorf("expected escaped link, got %q", idx)
	}
}

func TestContestStats(t *testing.T) {
	problems := []Problem{
		{ID: "A", TimeLimit: "1 second", MemoryLimit: "256 MB", HasSamples: true},
		{ID: "B", TimeLimit: "1 second", MemoryLimit: "512 MB"},
		{ID: "C", TimeLimit: Unknown, MemoryLimit: "256 MB", HasSamples: true},
	}
	st := ContestStats(problems)
	if st.Problems != 3 || st.WithSamples != 2 {
		t.Errorf("unexpected counts: %+v", st)
	}
	if st.TimeLimits["1 second"] != 2 || st.TimeLimits[Unknown] != 1 {
		t.Errorf("unexpected time limits: %v", st.TimeLimits)
	}
	if st.MemoryLimits["256 MB"] != 2 {
		t.Errorf("unexpected memory limits: %v", st.MemoryLimits)
	}
	sum := st.Summary()
	if !strings.Contains(sum, "**Problems:** 3 (2 with samples)") {
		t.Errorf("unexpected summary: %q", sum)
	}
	if !strings.Contains(sum, "1 second × 2") {
		t.Errorf("expected time limit tally in summary, got %q", sum)
	}
}

func TestFileNames_Duplicates(t *testing.T) {
	problems := []Problem{
		{ID: "A", Title: "Same"},
		{ID: "B"},
		{ID: "A", Title: "Same"},
		{ID: "A", Title: "Same"},
	}
	got := FileNames(problems)
	want := []string{"Problem_A_Same.md", "Problem_B.md", "Problem_A_Same_2.md", "Problem_A_Same_3.md"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("name %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	entries := Entries(problems, "problems")
	if entries[2].Path != "problems/Problem_A_Same_2.md" {
		t.Errorf("expected index entry to use the suffixed name, got %q", entries[2].Path)
	}
}
