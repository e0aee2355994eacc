package validation

import (
	"regexp"
	"strings"
)

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// SanitizeString HTML-escapes & < > " ' and / unconditionally.
func SanitizeString(s string) string {
	return htmlEscaper.Replace(s)
}

var sqlInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`),
	regexp.MustCompile(`(?i)\bselect\s+.+\s+from\b`),
	regexp.MustCompile(`(?i)\binsert\s+into\b`),
	regexp.MustCompile(`(?i)\bdelete\s+from\b`),
	regexp.MustCompile(`(?i)\bdrop\s+(table|database|schema)\b`),
	regexp.MustCompile(`(?i)\bupdate\s+\w+\s+set\b`),
	regexp.MustCompile(`(?i)\b(alter|truncate)\s+table\b`),
	regexp.MustCompile(`(?i)\bexec(ute)?\s*\(`),
	regexp.MustCompile(`(?i)'\s*(or|and)\s+['0-9]`),
	regexp.MustCompile(`(?i);\s*(drop|delete|insert|update|select|shutdown)\b`),
	regexp.MustCompile(`--`),
	regexp.MustCompile(`/\*|\*/`),
}

// ContainsSQLInjection reports whether s looks like an SQL injection attempt.
// It is a heuristic; stores must use parameterized queries regardless.
func ContainsSQLInjection(s string) bool {
	for _, p := range sqlInjectionPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
