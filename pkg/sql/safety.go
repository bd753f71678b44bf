package sql

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/logging"
)

// Denylist holds mutating and administrative keywords that must never appear
// as bare words in a generated statement.
var Denylist = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "TRUNCATE", "ALTER", "CREATE",
	"GRANT", "REVOKE", "COMMIT", "ROLLBACK", "SET", "EXEC", "EXECUTE",
	"ATTACH", "DETACH", "REINDEX", "VACUUM",
}

// Report is the result of a successful validation.
type Report struct {
	Statement *Statement
	// ReferencedTables are allow-listed tables found among the identifiers.
	ReferencedTables []string
}

// Validator enforces the read-only contract on generated SQL.
type Validator struct {
	denied map[string]bool
	logger *zap.Logger
}

func NewValidator(logger *zap.Logger) *Validator {
	denied := make(map[string]bool, len(Denylist))
	for _, kw := range Denylist {
		denied[kw] = true
	}
	return &Validator{denied: denied, logger: logger.Named("sql-validator")}
}

// Validate checks sql against the denylist, the single read statement rule
// and injection heuristics. The allow-list check is advisory: a statement
// referencing none of allowedTables is logged and still accepted, since
// aliases and joins make identifier matching unreliable.
//
// A denylisted keyword fails with ForbiddenKeyword even when the statement
// type alone would already be rejected; in that case the error also matches
// the forbidden statement kind.
func (v *Validator) Validate(query string, allowedTables []string) (*Report, error) {
	tokens, err := Tokenize(query)
	if err != nil {
		return nil, apperrors.MalformedSQL(err.Error(), query)
	}

	for _, t := range tokens {
		if t.Kind == TokenWord && v.denied[t.Upper()] {
			return nil, apperrors.ForbiddenKeyword(t.Value, query, !leadsWithRead(tokens))
		}
	}

	stmt, err := Parse(query)
	switch {
	case errors.Is(err, ErrMultipleStatements):
		return nil, apperrors.ForbiddenStatement("multiple statements", query)
	case err != nil:
		return nil, apperrors.MalformedSQL(err.Error(), query)
	}

	if !stmt.IsRead() {
		return nil, apperrors.ForbiddenStatement(stmt.Type(), query)
	}

	if hit := CheckLiteralsForInjection(stmt.Literals()); hit != nil {
		return nil, apperrors.ForbiddenPattern(
			fmt.Sprintf("string literal matches an injection pattern (fingerprint %s)", hit.Fingerprint), query)
	}

	report := &Report{Statement: stmt, ReferencedTables: ReferencedTables(stmt, allowedTables)}
	if len(allowedTables) > 0 && len(report.ReferencedTables) == 0 {
		v.logger.Warn("Statement references no allow-listed table",
			zap.Strings("allowed_tables", allowedTables),
			zap.String("sql", logging.SanitizeQuery(query)))
	}
	return report, nil
}

// ReferencedTables returns the allowed table names that occur as identifiers
// in stmt, compared case-insensitively, in allow-list order.
func ReferencedTables(stmt *Statement, allowedTables []string) []string {
	seen := make(map[string]bool)
	for _, ident := range stmt.Identifiers() {
		seen[strings.ToLower(ident)] = true
	}
	var out []string
	for _, table := range allowedTables {
		if seen[strings.ToLower(table)] {
			out = append(out, table)
		}
	}
	return out
}

func leadsWithRead(tokens []Token) bool {
	for _, t := range tokens {
		if t.Kind == TokenPunct && t.Value == "(" {
			continue
		}
		return t.Kind == TokenWord && readKeywords[t.Upper()]
	}
	return false
}
