package llm

import (
	"regexp"
	"strings"
)

// thinkBlockPattern matches <think>...</think> blocks emitted by reasoning models.
var thinkBlockPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinking removes reasoning blocks so only the model's answer remains.
// An unterminated <think> drops everything after it.
func StripThinking(response string) string {
	cleaned := thinkBlockPattern.ReplaceAllString(response, "")
	if i := strings.Index(cleaned, "<think>"); i >= 0 {
		cleaned = cleaned[:i]
	}
	return strings.TrimSpace(cleaned)
}
