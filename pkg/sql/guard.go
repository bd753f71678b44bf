package sql

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
)

// Dialect selects how a row bound is spelled.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
	DialectMSSQL    Dialect = "mssql"
)

// ApplyGuards is the executor's own line of defense, run whether or not the
// statement went through the Validator. It rejects unqualified wildcard
// projections and bounds unbounded queries to limit rows. The returned
// statement carries no trailing semicolon.
func ApplyGuards(query string, dialect Dialect, limit int) (string, error) {
	body := StripTerminator(query)
	tokens, err := Tokenize(body)
	if err != nil {
		return "", apperrors.MalformedSQL(err.Error(), query)
	}
	if len(tokens) == 0 {
		return "", apperrors.MalformedSQL(ErrEmptyStatement.Error(), query)
	}

	// Drop trailing comments so an appended bound is not swallowed by one.
	last := tokens[len(tokens)-1]
	body = StripTerminator(body[:last.Offset+len(last.Value)])

	if i := findWildcardProjection(tokens); i >= 0 {
		return "", apperrors.ForbiddenPattern("wildcard projection is not allowed; list the columns explicitly", query)
	}

	if limit <= 0 || hasRowBound(tokens) {
		return body, nil
	}

	if dialect == DialectMSSQL {
		return insertTop(body, tokens, limit), nil
	}
	return fmt.Sprintf("%s LIMIT %d", body, limit), nil
}

// findWildcardProjection returns the index of a bare "*" used as a select
// item, or -1. Qualified wildcards (t.*) and COUNT(*) are allowed.
func findWildcardProjection(tokens []Token) int {
	for i, t := range tokens {
		if t.Kind != TokenStar {
			continue
		}
		if i == 0 {
			return i
		}
		prev := tokens[i-1]
		switch {
		case prev.IsWord("SELECT"), prev.IsWord("DISTINCT"), prev.IsWord("ALL"):
			return i
		case prev.Kind == TokenPunct && prev.Value == ",":
			return i
		case afterTopClause(tokens, i), afterDistinctOn(tokens, i):
			return i
		}
	}
	return -1
}

// afterTopClause reports whether tokens[i] directly follows "TOP n" or "TOP (n)".
func afterTopClause(tokens []Token, i int) bool {
	switch {
	case i >= 2 && tokens[i-1].Kind == TokenNumber && tokens[i-2].IsWord("TOP"):
		return true
	case i >= 4 && tokens[i-1].Value == ")" && tokens[i-3].Value == "(" && tokens[i-4].IsWord("TOP"):
		return true
	}
	return false
}

// afterDistinctOn reports whether tokens[i] directly follows "DISTINCT ON (...)".
func afterDistinctOn(tokens []Token, i int) bool {
	closeParen := tokens[i-1]
	if closeParen.Kind != TokenPunct || closeParen.Value != ")" {
		return false
	}
	for j := i - 2; j >= 0; j-- {
		t := tokens[j]
		if t.Kind == TokenPunct && t.Value == "(" && t.Depth == closeParen.Depth {
			return j >= 2 && tokens[j-1].IsWord("ON") && tokens[j-2].IsWord("DISTINCT")
		}
	}
	return false
}

func hasRowBound(tokens []Token) bool {
	for _, t := range tokens {
		if t.Depth != 0 {
			continue
		}
		if t.IsWord("LIMIT") || t.IsWord("FETCH") || t.IsWord("TOP") {
			return true
		}
	}
	return false
}

// insertTop places TOP (limit) after the main query's SELECT [DISTINCT|ALL].
// For a compound query only the first branch is bounded; the executor's
// row cap covers the rest.
func insertTop(body string, tokens []Token, limit int) string {
	for i, t := range tokens {
		if t.Depth != 0 || !t.IsWord("SELECT") {
			continue
		}
		end := t.Offset + len(t.Value)
		if i+1 < len(tokens) && (tokens[i+1].IsWord("DISTINCT") || tokens[i+1].IsWord("ALL")) {
			end = tokens[i+1].Offset + len(tokens[i+1].Value)
		}
		var b strings.Builder
		b.WriteString(body[:end])
		fmt.Fprintf(&b, " TOP (%d)", limit)
		b.WriteString(body[end:])
		return b.String()
	}
	return body
}
