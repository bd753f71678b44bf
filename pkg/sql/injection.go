package sql

import (
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a string literal that libinjection flags.
type InjectionCheckResult struct {
	Literal     string
	Fingerprint string
}

// CheckLiteralForInjection reports whether a string literal embedded in a
// generated statement looks like an injection payload, e.g. a literal that
// closes its own quote and appends a second statement. Returns nil when clean.
func CheckLiteralForInjection(literal string) *InjectionCheckResult {
	if literal == "" {
		return nil
	}
	if isSQLi, fingerprint := libinjection.IsSQLi(literal); isSQLi {
		return &InjectionCheckResult{Literal: literal, Fingerprint: string(fingerprint)}
	}
	return nil
}

// CheckLiteralsForInjection returns the first flagged literal, or nil. Only
// literals that carry quote or comment characters can smuggle SQL, so plain
// search patterns such as '%moscow%' are not inspected.
func CheckLiteralsForInjection(literals []string) *InjectionCheckResult {
	for _, lit := range literals {
		if !strings.ContainsAny(lit, `'";`) && !strings.Contains(lit, "--") && !strings.Contains(lit, "/*") {
			continue
		}
		if r := CheckLiteralForInjection(lit); r != nil {
			return r
		}
	}
	return nil
}
