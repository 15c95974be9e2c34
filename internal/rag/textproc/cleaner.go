package textproc

import (
	"regexp"
	"strings"
)

var (
	pageArtifactRe  = regexp.MustCompile(`Page \d+\s*of\s*\d+`)
	bareNumberRe    = regexp.MustCompile(`(?m)^\s*\d+\s*$`)
	newlineRunRe    = regexp.MustCompile(`\n{3,}`)
	spaceRunRe      = regexp.MustCompile(` {2,}`)
	currencyRe      = regexp.MustCompile(`\$\s*([0-9,]+)`)
	groupedDigitsRe = regexp.MustCompile(`(\d+)\s*,\s*(\d+)`)
	columnGapRe     = regexp.MustCompile(`\s{2,}`)
)

// CleanText normalizes raw page text: page-number artifacts and lines that
// are solely a number are dropped, whitespace runs are collapsed, and
// currency/grouped-digit spacing is tightened ("$ 1,234" -> "$1,234").
func CleanText(text string) string {
	text = pageArtifactRe.ReplaceAllString(text, "")
	text = bareNumberRe.ReplaceAllString(text, "")

	text = newlineRunRe.ReplaceAllString(text, "\n\n")
	text = spaceRunRe.ReplaceAllString(text, " ")

	text = currencyRe.ReplaceAllString(text, "$$$1")
	text = groupedDigitsRe.ReplaceAllString(text, "$1,$2")

	return strings.TrimSpace(text)
}

// FormatTable reformats extracted table text so that runs of two or more
// whitespace characters on each line become " | " column separators.
func FormatTable(tableText string) string {
	lines := strings.Split(strings.TrimSpace(tableText), "\n")
	cleaned := make([]string, len(lines))

	for i, line := range lines {
		cleaned[i] = columnGapRe.ReplaceAllString(strings.TrimSpace(line), " | ")
	}

	return strings.Join(cleaned, "\n")
}
