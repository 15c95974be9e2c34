package textproc

import (
	"regexp"
	"strings"
)

// sectionPatterns are tried in order against the head of a chunk. The first
// match wins; group 1 is used when the pattern captures, otherwise the whole
// match.
var sectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(Revenue|Expenses|Capital|Transportation|Education|Public Safety|Health)`),
	regexp.MustCompile(`(?i)Department of ([\w\s]+)`),
	regexp.MustCompile(`(?i)^\s*\d+\.\s*([A-Z][^.]+)`),
}

// ExtractSection classifies a chunk by its opening text. Only the first 200
// characters are considered; headings do not appear deeper than that. Chunks
// with no recognizable heading are labeled "General".
func ExtractSection(text string) string {
	head := []rune(text)
	if len(head) > 200 {
		head = head[:200]
	}
	sample := string(head)

	for _, pattern := range sectionPatterns {
		m := pattern.FindStringSubmatch(sample)
		if m == nil {
			continue
		}
		if len(m) > 1 && m[1] != "" {
			return strings.TrimSpace(m[1])
		}
		return strings.TrimSpace(m[0])
	}

	return "General"
}
