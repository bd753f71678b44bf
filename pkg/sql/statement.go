package sql

import (
	"errors"
	"strings"
)

var (
	ErrEmptyStatement     = errors.New("empty statement")
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
)

// readKeywords are the statement types accepted as read queries.
var readKeywords = map[string]bool{
	"SELECT": true,
	"WITH":   true,
}

// Statement is a single tokenized SQL statement.
type Statement struct {
	Source string
	Tokens []Token
}

// Parse tokenizes sql and checks that it holds exactly one statement.
// A single trailing semicolon is allowed.
func Parse(sql string) (*Statement, error) {
	tokens, err := Tokenize(sql)
	if err != nil {
		return nil, err
	}
	for len(tokens) > 0 && tokens[len(tokens)-1].Value == ";" {
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) == 0 {
		return nil, ErrEmptyStatement
	}
	for _, t := range tokens {
		if t.Kind == TokenPunct && t.Value == ";" {
			return nil, ErrMultipleStatements
		}
	}
	return &Statement{Source: sql, Tokens: tokens}, nil
}

// Type returns the leading keyword, skipping opening parentheses, upper-cased.
func (s *Statement) Type() string {
	for _, t := range s.Tokens {
		if t.Kind == TokenPunct && t.Value == "(" {
			continue
		}
		if t.Kind == TokenWord {
			return t.Upper()
		}
		return "UNKNOWN"
	}
	return "UNKNOWN"
}

// IsRead reports whether the statement's top-level type is a read query.
func (s *Statement) IsRead() bool {
	return readKeywords[s.Type()]
}

// HasTopLevelWord reports whether w appears as a bare word outside any parentheses.
func (s *Statement) HasTopLevelWord(w string) bool {
	for _, t := range s.Tokens {
		if t.Depth == 0 && t.IsWord(w) {
			return true
		}
	}
	return false
}

// Identifiers returns every identifier token value (words that are not
// reserved SQL keywords plus quoted identifiers), in order of appearance.
func (s *Statement) Identifiers() []string {
	var out []string
	for _, t := range s.Tokens {
		if t.Kind == TokenWord && reservedWords[t.Upper()] {
			continue
		}
		if name, ok := t.Ident(); ok {
			out = append(out, name)
		}
	}
	return out
}

// Literals returns the contents of every string literal.
func (s *Statement) Literals() []string {
	var out []string
	for _, t := range s.Tokens {
		if lit, ok := t.Literal(); ok {
			out = append(out, lit)
		}
	}
	return out
}

// Normalize trims whitespace and trailing semicolons and terminates the
// statement with exactly one semicolon.
func Normalize(sql string) string {
	return StripTerminator(sql) + ";"
}

// StripTerminator trims whitespace and any trailing semicolons.
func StripTerminator(sql string) string {
	return strings.TrimRight(strings.TrimSpace(sql), "; \t\r\n")
}

// reservedWords are keywords never treated as table or column references.
var reservedWords = map[string]bool{
	"ALL": true, "AND": true, "ANY": true, "AS": true, "ASC": true, "BETWEEN": true,
	"BY": true, "CASE": true, "CAST": true, "CROSS": true, "CURRENT_DATE": true,
	"CURRENT_TIMESTAMP": true, "DATE": true, "DAY": true, "DESC": true, "DISTINCT": true,
	"ELSE": true, "END": true, "EXCEPT": true, "EXISTS": true, "EXTRACT": true,
	"FALSE": true, "FETCH": true, "FILTER": true, "FIRST": true, "FROM": true,
	"FULL": true, "GROUP": true, "HAVING": true, "ILIKE": true, "IN": true,
	"INNER": true, "INTERSECT": true, "INTERVAL": true, "IS": true, "JOIN": true,
	"LAST": true, "LEFT": true, "LIKE": true, "LIMIT": true, "MONTH": true,
	"NATURAL": true, "NEXT": true, "NOT": true, "NULL": true, "NULLS": true,
	"OFFSET": true, "ON": true, "ONLY": true, "OR": true, "ORDER": true,
	"OUTER": true, "OVER": true, "PARTITION": true, "RECURSIVE": true,
	"RIGHT": true, "ROW": true, "ROWS": true, "SELECT": true, "SOME": true,
	"THEN": true, "TIES": true, "TOP": true, "TRUE": true, "UNION": true,
	"USING": true, "VALUES": true, "WHEN": true, "WHERE": true, "WINDOW": true,
	"WITH": true, "YEAR": true,
}
