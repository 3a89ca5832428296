package log

import "regexp"

// Redaction patterns: long hex runs and UUIDs (feed tokens), query strings
// on URLs (private calendar keys), tokenized feed file names.
var (
	reHex = regexp.MustCompile(
		`\b[0-9a-fA-F]{16,}\b|` +
			`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[1-5][0-9a-fA-F]{3}-[089abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}\b`)
	reQuery = regexp.MustCompile(`\?\S*`)
	reFeed  = regexp.MustCompile(`([A-Z0-9\-_.]+)--([0-9a-fA-F]{8,})\.ics\b`)
)

// Redact strips secrets from a log line. It is applied to every line the
// package emits, so callers never need to sanitize by hand.
func Redact(s string) string {
	s = reQuery.ReplaceAllString(s, "?***")
	s = reFeed.ReplaceAllString(s, "$1--***.ics")
	s = reHex.ReplaceAllString(s, "***")
	return s
}

// RedactURL hides everything past the host of a URL for logging.
func RedactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "ics://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + redactedSuffix
}
