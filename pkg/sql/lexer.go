// Package sql tokenizes generated SQL and enforces the read-only safety rules
// applied before any statement reaches a database.
package sql

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// TokenKind classifies a lexed token.
type TokenKind string

const (
	TokenWord        TokenKind = "Word"
	TokenQuotedIdent TokenKind = "QuotedIdent"
	TokenString      TokenKind = "String"
	TokenNumber      TokenKind = "Number"
	TokenParam       TokenKind = "Param"
	TokenStar        TokenKind = "Star"
	TokenPunct       TokenKind = "Punct"
	TokenOperator    TokenKind = "Operator"
)

// Rule order matters: the first pattern matching at a position wins.
var sqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Comment", Pattern: `--[^\n]*|/\*(?s:.*?)\*/`},
	{Name: "OpenComment", Pattern: `/\*`},
	{Name: string(TokenString), Pattern: `[EeNn]?'(?:[^']|'')*'`},
	{Name: string(TokenQuotedIdent), Pattern: "\"(?:[^\"]|\"\")*\"|`[^`]*`|\\[[^\\]]*\\]"},
	{Name: string(TokenNumber), Pattern: `(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][-+]?\d+)?`},
	{Name: string(TokenParam), Pattern: `\$\d+`},
	{Name: string(TokenWord), Pattern: `[\p{L}_][\p{L}\p{N}_$]*`},
	{Name: string(TokenStar), Pattern: `\*`},
	{Name: string(TokenPunct), Pattern: `[(),;.\[\]]`},
	{Name: string(TokenOperator), Pattern: `[-+/%<>=!|&^~:@#?]+`},
})

// Token is a significant lexeme. Whitespace and comments are dropped.
type Token struct {
	Kind  TokenKind
	Value string
	// Depth is the parenthesis nesting level the token sits at.
	Depth int
	// Offset is the byte offset of the token in the source.
	Offset int
}

// Upper returns the token value upper-cased, for keyword comparison.
func (t Token) Upper() string {
	return strings.ToUpper(t.Value)
}

// IsWord reports whether t is the bare word w, compared case-insensitively.
func (t Token) IsWord(w string) bool {
	return t.Kind == TokenWord && strings.EqualFold(t.Value, w)
}

// Ident returns the identifier named by a word or quoted identifier token.
func (t Token) Ident() (string, bool) {
	switch t.Kind {
	case TokenWord:
		return t.Value, true
	case TokenQuotedIdent:
		inner := t.Value[1 : len(t.Value)-1]
		if t.Value[0] == '"' {
			inner = strings.ReplaceAll(inner, `""`, `"`)
		}
		return inner, true
	}
	return "", false
}

// Literal returns the contents of a string literal token.
func (t Token) Literal() (string, bool) {
	if t.Kind != TokenString {
		return "", false
	}
	v := t.Value
	if v[0] != '\'' {
		v = v[1:]
	}
	return strings.ReplaceAll(v[1:len(v)-1], "''", "'"), true
}

// Tokenize splits sql into significant tokens and tracks parenthesis depth.
// Unterminated literals, comments or identifiers and unbalanced parentheses
// are errors.
func Tokenize(sql string) ([]Token, error) {
	lex, err := sqlLexer.LexString("", sql)
	if err != nil {
		return nil, err
	}
	raw, err := lexer.ConsumeAll(lex)
	if err != nil {
		return nil, err
	}

	symbols := sqlLexer.Symbols()
	names := make(map[lexer.TokenType]string, len(symbols))
	for name, typ := range symbols {
		names[typ] = name
	}

	tokens := make([]Token, 0, len(raw))
	depth := 0
	for _, tok := range raw {
		if tok.EOF() {
			break
		}
		name := names[tok.Type]
		switch name {
		case "Whitespace", "Comment":
			continue
		case "OpenComment":
			return nil, fmt.Errorf("unterminated comment at offset %d", tok.Pos.Offset)
		}

		t := Token{Kind: TokenKind(name), Value: tok.Value, Depth: depth, Offset: tok.Pos.Offset}
		if t.Kind == TokenPunct {
			switch t.Value {
			case "(":
				depth++
			case ")":
				depth--
				if depth < 0 {
					return nil, fmt.Errorf("unbalanced ')' at offset %d", tok.Pos.Offset)
				}
				t.Depth = depth
			}
		}
		tokens = append(tokens, t)
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parentheses: %d unclosed", depth)
	}
	return tokens, nil
}
