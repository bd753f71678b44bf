package services

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	sqlpkg "github.com/ekaya-inc/ekaya-insights/pkg/sql"
)

// CompiledPrompt is the system prompt for SQL generation.
type CompiledPrompt struct {
	Text string
	// Tables are the names of the tables declared in Text, in order.
	Tables []string
}

// PromptCompiler renders curated tables into a DDL-style schema and the
// generation rules. It performs no I/O.
type PromptCompiler struct {
	logger *zap.Logger
}

func NewPromptCompiler(logger *zap.Logger) *PromptCompiler {
	return &PromptCompiler{logger: logger.Named("prompt-compiler")}
}

var dialectNames = map[sqlpkg.Dialect]string{
	sqlpkg.DialectPostgres: "PostgreSQL",
	sqlpkg.DialectMySQL:    "MySQL",
	sqlpkg.DialectSQLite:   "SQLite",
	sqlpkg.DialectMSSQL:    "SQL Server",
}

// Compile declares every table using only its enabled columns. Tables with
// no enabled columns are left out; if that leaves nothing to declare the
// result is a configuration error.
func (c *PromptCompiler) Compile(tables []*models.CuratedTable, dialect sqlpkg.Dialect) (*CompiledPrompt, error) {
	var ddl strings.Builder
	var names []string

	for _, t := range tables {
		columns := enabledColumns(t.Columns)
		if len(columns) == 0 {
			c.logger.Info("Skipping table without enabled columns",
				zap.String("table", t.TableName))
			continue
		}
		writeTableDDL(&ddl, t, columns, dialect)
		names = append(names, t.TableName)
	}

	if len(names) == 0 {
		return nil, apperrors.Configuration("none of the selected tables has an enabled column")
	}

	var b strings.Builder
	b.WriteString(generationRules(dialect))
	b.WriteString("\nSCHEMA (only these tables and columns exist):\n\n")
	b.WriteString(ddl.String())

	return &CompiledPrompt{Text: b.String(), Tables: names}, nil
}

func enabledColumns(columns []models.CuratedColumn) []models.CuratedColumn {
	out := make([]models.CuratedColumn, 0, len(columns))
	for _, col := range columns {
		if col.IsEnabled {
			out = append(out, col)
		}
	}
	return out
}

func writeTableDDL(b *strings.Builder, t *models.CuratedTable, columns []models.CuratedColumn, dialect sqlpkg.Dialect) {
	if desc := t.DescriptionText(); desc != "" {
		fmt.Fprintf(b, "-- Table %s: %s\n", t.TableName, oneLine(desc))
	}
	fmt.Fprintf(b, "CREATE TABLE %s (\n", sqlpkg.QuoteIdent(t.TableName, dialect))

	for i, col := range columns {
		b.WriteString("  ")
		b.WriteString(sqlpkg.QuoteIdent(col.ColumnName, dialect))
		if col.DataType != "" {
			b.WriteString(" ")
			b.WriteString(col.DataType)
		}
		if i < len(columns)-1 {
			b.WriteString(",")
		}
		if note := columnNote(col); note != "" {
			b.WriteString(" -- ")
			b.WriteString(note)
		}
		b.WriteString("\n")
	}
	b.WriteString(");\n\n")
}

func columnNote(col models.CuratedColumn) string {
	var parts []string
	if desc := col.DescriptionText(); desc != "" {
		parts = append(parts, oneLine(desc))
	}
	switch {
	case col.IsMetric:
		parts = append(parts, "[metric]")
	case col.IsDimension:
		parts = append(parts, "[dimension]")
	}
	return strings.Join(parts, " ")
}

// oneLine keeps a description from breaking out of its SQL comment.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func generationRules(dialect sqlpkg.Dialect) string {
	name := dialectNames[dialect]
	if name == "" {
		name = dialectNames[sqlpkg.DialectPostgres]
	}

	pattern := "ILIKE '%value%'"
	if dialect != sqlpkg.DialectPostgres {
		pattern = "LOWER(column) LIKE LOWER('%value%')"
	}

	rules := []string{
		fmt.Sprintf("You translate analytics questions into a single %s query.", name),
		"Reply with exactly one SELECT (or WITH ... SELECT) statement and nothing else. No explanations.",
		"Use only the tables and columns declared in the schema below. Never invent table or column names.",
		"Quote identifiers exactly as they are quoted in the schema.",
		"List the selected columns explicitly. Never use SELECT *.",
		fmt.Sprintf("Filter free-text values case-insensitively with %s.", pattern),
		"Every column you filter or sort by must also appear in the SELECT list.",
		"Never modify data or schema.",
	}

	var b strings.Builder
	for _, r := range rules {
		b.WriteString("- ")
		b.WriteString(r)
		b.WriteString("\n")
	}
	return b.String()
}
