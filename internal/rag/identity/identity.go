package identity

import (
	"regexp"
	"strings"
)

// CleanCityName normalizes a city name for use in a document id: lowercase,
// honorific prefixes removed, surrounding whitespace trimmed, and inner
// spaces replaced with underscores.
func CleanCityName(cityName string) string {
	cleaned := strings.ToLower(cityName)
	cleaned = strings.ReplaceAll(cleaned, "city of", "")
	cleaned = strings.ReplaceAll(cleaned, "municipality of", "")
	cleaned = strings.TrimSpace(cleaned)
	return strings.ReplaceAll(cleaned, " ", "_")
}

// DocumentID derives the partition key for a document from its city name and
// fiscal year. Identical (city, year) pairs always produce the same id;
// missing parts collapse to "unknown".
func DocumentID(cityName, fiscalYear string) string {
	city := cityName
	if city == "" {
		city = "unknown"
	}
	year := strings.TrimSpace(fiscalYear)
	if year == "" {
		year = "unknown"
	}
	return strings.ToLower(CleanCityName(city) + "_" + year)
}

var cityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)City of ([A-Za-z\s]+?)(?:\n|Budget|Fiscal)`),
	regexp.MustCompile(`(?i)([A-Za-z\s]+?) City`),
	regexp.MustCompile(`(?i)Municipality of ([A-Za-z\s]+)`),
}

var fiscalYearPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)FY\s*(\d{4}[-/]\d{2,4})`),
	regexp.MustCompile(`(?i)Fiscal Year\s*(\d{4}[-/]\d{2,4})`),
	regexp.MustCompile(`(?i)Budget\s*(\d{4}[-/]\d{2,4})`),
	regexp.MustCompile(`(?i)(\d{4}[-/]\d{2,4})\s*Budget`),
}

// DetectMetadata scans the opening text of a document for a city name and a
// fiscal year. Either value is "Unknown" when no pattern matches. Only the
// first 5000 characters are inspected; cover pages carry this information
// when it is present at all.
func DetectMetadata(text string) (cityName, fiscalYear string) {
	cityName, fiscalYear = "Unknown", "Unknown"

	head := []rune(text)
	if len(head) > 5000 {
		head = head[:5000]
	}
	sample := string(head)

	for _, pattern := range cityPatterns {
		if m := pattern.FindStringSubmatch(sample); m != nil {
			cityName = strings.TrimSpace(m[1])
			break
		}
	}
	for _, pattern := range fiscalYearPatterns {
		if m := pattern.FindStringSubmatch(sample); m != nil {
			fiscalYear = strings.TrimSpace(m[1])
			break
		}
	}
	return cityName, fiscalYear
}
