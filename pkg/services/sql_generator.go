package services

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/llm"
	"github.com/ekaya-inc/ekaya-insights/pkg/logging"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	sqlpkg "github.com/ekaya-inc/ekaya-insights/pkg/sql"
)

// SQLGenerator asks the completion backend for one statement answering the question.
type SQLGenerator interface {
	// Generate returns a single normalized statement terminated by one
	// semicolon. When the model output holds no SQL, it fails with a
	// generation error carrying the raw text.
	Generate(ctx context.Context, prompt *CompiledPrompt, question string, history models.History) (string, error)
}

type sqlGenerator struct {
	completer   llm.Completer
	temperature float64
	logger      *zap.Logger
}

func NewSQLGenerator(completer llm.Completer, temperature float64, logger *zap.Logger) SQLGenerator {
	return &sqlGenerator{
		completer:   completer,
		temperature: temperature,
		logger:      logger.Named("sql-generator"),
	}
}

var _ SQLGenerator = (*sqlGenerator)(nil)

func (g *sqlGenerator) Generate(ctx context.Context, prompt *CompiledPrompt, question string, history models.History) (string, error) {
	messages := make([]llm.Message, 0, history.Len()+1)
	for _, turn := range history.Turns() {
		messages = append(messages, llm.Message{Role: string(turn.Role), Content: turn.Render()})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: "Question: " + question + "\nSQL:"})

	raw, err := g.completer.Complete(ctx, prompt.Text, messages, g.temperature)
	if err != nil {
		if _, ok := apperrors.As(err); ok {
			return "", err
		}
		return "", apperrors.BackendUnavailable("completion request failed", err)
	}

	query, strategy, ok := ExtractSQL(raw)
	if !ok {
		g.logger.Warn("Model output holds no SQL",
			zap.String("output", logging.TruncateString(raw, 200)))
		return "", apperrors.Generation("the model did not return a SQL query", raw)
	}

	g.logger.Debug("Extracted SQL",
		zap.String("strategy", strategy),
		zap.String("sql", logging.SanitizeQuery(query)))
	return sqlpkg.Normalize(query), nil
}

// sqlExtractor is one total parsing strategy over model output.
type sqlExtractor struct {
	name    string
	extract func(text string) (string, bool)
}

// readStart matches SELECT, or WITH only when a CTE definition follows, so
// prose such as "with a grouping" is not taken for SQL.
const readStart = `(?:\bSELECT\b|\bWITH\s+(?:RECURSIVE\s+)?(?:"[^"]+"|[\p{L}_][\p{L}\p{N}_]*)\s*(?:\([^)]*\)\s*)?AS\s*(?:NOT\s+)?(?:MATERIALIZED\s*)?\()`

var (
	fencedSQL    = regexp.MustCompile("(?is)```[ \\t]*sql[ \\t]*\\r?\\n?(.*?)```")
	leadingRead  = regexp.MustCompile(`(?i)^` + readStart)
	embeddedRead = regexp.MustCompile(`(?i)` + readStart)
)

// extractionChain is tried in order; the first strategy that matches wins.
var extractionChain = []sqlExtractor{
	{name: "fenced", extract: extractFenced},
	{name: "prefix", extract: extractPrefixed},
	{name: "scan", extract: extractScanned},
}

// ExtractSQL runs the extraction chain over raw model output after removing
// reasoning blocks. It reports the strategy that matched.
func ExtractSQL(raw string) (query, strategy string, ok bool) {
	text := strings.TrimSpace(llm.StripThinking(raw))
	for _, s := range extractionChain {
		if q, ok := s.extract(text); ok {
			return q, s.name, true
		}
	}
	return "", "", false
}

func extractFenced(text string) (string, bool) {
	m := fencedSQL.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return nonEmpty(m[1])
}

func extractPrefixed(text string) (string, bool) {
	if !leadingRead.MatchString(text) {
		return "", false
	}
	return nonEmpty(text)
}

// extractScanned takes the text from the first SELECT or CTE WITH up to
// the first statement terminator or code fence.
func extractScanned(text string) (string, bool) {
	loc := embeddedRead.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	rest := text[loc[0]:]
	if i := strings.Index(rest, "```"); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.Index(rest, ";"); i >= 0 {
		rest = rest[:i]
	}
	return nonEmpty(rest)
}

func nonEmpty(s string) (string, bool) {
	s = sqlpkg.StripTerminator(s)
	if s == "" {
		return "", false
	}
	return s, true
}
