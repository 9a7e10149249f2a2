package outputstore

import (
	"regexp"

	"github.com/edirooss/procexecd/pkg/procexec"
)

// applyGrep implements spec.md §4.1's two grep modes. "line" keeps whole
// entries whose text matches; "content" replaces each entry's text with the
// matched substring and drops non-matches. Per spec.md §9's resolved open
// question, a line with multiple matches in content mode yields one output
// entry per match (not just the first).
func applyGrep(entries []procexec.OutputEntry, pattern string, mode procexec.GrepMode) ([]procexec.OutputEntry, error) {
	if pattern == "" {
		return entries, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	if mode == procexec.GrepModeContent {
		var out []procexec.OutputEntry
		for _, e := range entries {
			matches := re.FindAllString(e.Text, -1)
			for _, m := range matches {
				out = append(out, procexec.OutputEntry{Seq: e.Seq, Time: e.Time, Text: m})
			}
		}
		return out, nil
	}

	var out []procexec.OutputEntry
	for _, e := range entries {
		if re.MatchString(e.Text) {
			out = append(out, e)
		}
	}
	return out, nil
}

// applyTail returns the last *n entries, preserving stored order. nil means
// no tail limit (return everything); a pointed-to 0 returns nothing, per
// spec.md §8's boundary law ("tail = 0 returns no entries; tail = len(S)
// returns all").
func applyTail(entries []procexec.OutputEntry, tail *int) []procexec.OutputEntry {
	if tail == nil {
		return entries
	}
	n := *tail
	if n <= 0 {
		return nil
	}
	if n >= len(entries) {
		return entries
	}
	return entries[len(entries)-n:]
}
