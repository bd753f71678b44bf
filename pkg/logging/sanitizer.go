package logging

import (
	"regexp"
	"strings"
)

const (
	// MaxQueryLogLength bounds how much of a SQL statement reaches the logs.
	MaxQueryLogLength = 100
	RedactedText      = "[REDACTED]"
)

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

var (
	// key=value secrets in DSNs (password=..., pwd=..., pass=...)
	passwordRule = redaction{regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`), "${1}=" + RedactedText}
	// user:pass@host in URL-style DSNs
	userInfoRule = redaction{regexp.MustCompile(`://[^:/\s]+:[^@]+@[^/\s]+`), "://" + RedactedText + "@" + RedactedText}
	// provider API keys (OpenAI sk-..., Anthropic sk-ant-...)
	apiKeyRule = redaction{regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`), RedactedText}
	bearerRule = redaction{regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`), "Bearer " + RedactedText}
)

func apply(s string, rules ...redaction) string {
	for _, r := range rules {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// SanitizeConnectionString strips credentials from a DSN before it is logged.
func SanitizeConnectionString(dsn string) string {
	return apply(dsn, passwordRule, userInfoRule)
}

// SanitizeError renders err with credentials and API keys removed.
// Driver and HTTP client errors regularly echo the DSN or auth header.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return apply(err.Error(), passwordRule, userInfoRule, apiKeyRule, bearerRule)
}

// SanitizeQuery collapses whitespace and truncates a statement for logging.
func SanitizeQuery(query string) string {
	query = strings.Join(strings.Fields(query), " ")
	return apply(TruncateString(query, MaxQueryLogLength), passwordRule)
}

// TruncateString cuts s to maxLen bytes and marks the cut with an ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
