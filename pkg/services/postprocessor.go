package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/config"
	"github.com/ekaya-inc/ekaya-insights/pkg/llm"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

const (
	fallbackSummary = "Here is the data for your request:"
	emptySummary    = "The query returned no rows."
)

const summarySystemPrompt = `You are an analytics assistant.
Write a short, friendly answer explaining the data that was retrieved for the user's question.
Describe the data, do not reproduce it. Answer in the language of the question.`

// Answer is the user-facing rendering of a query result.
type Answer struct {
	// Text is the narrative summary, followed by a table of the full result
	// when no chart was produced.
	Text      string
	// Narrative is the summary alone.
	Narrative string
	Chart     *models.Chart
}

// Postprocessor turns a tabular result into a chart and a narrative.
type Postprocessor struct {
	completer   llm.Completer
	temperature float64
	cfg         config.ChartConfig
	logger      *zap.Logger
}

func NewPostprocessor(completer llm.Completer, temperature float64, cfg config.ChartConfig, logger *zap.Logger) *Postprocessor {
	return &Postprocessor{
		completer:   completer,
		temperature: temperature,
		cfg:         cfg,
		logger:      logger.Named("postprocessor"),
	}
}

// Process charts the result when it is plottable and summarizes it.
func (p *Postprocessor) Process(ctx context.Context, question string, result *datasource.QueryExecutionResult) (*Answer, error) {
	var chart *models.Chart
	if IsPlottable(result) {
		chart = BuildChart(question, result, DetectChartKind(question, result), p.cfg.DisplayCap)
	}

	summary, err := p.Summarize(ctx, question, result)
	if err != nil {
		return nil, err
	}

	text := summary
	if chart == nil && result.RowCount > 0 {
		text += "\n\n" + RenderMarkdownTable(result)
	}
	return &Answer{Text: text, Narrative: summary, Chart: chart}, nil
}

// Summarize asks the completion backend to describe a head sample of the
// result. Empty model output falls back to a generic acknowledgement.
func (p *Postprocessor) Summarize(ctx context.Context, question string, result *datasource.QueryExecutionResult) (string, error) {
	if result.RowCount == 0 {
		return emptySummary, nil
	}

	sample := result.Rows
	if p.cfg.SummarySampleRows > 0 && len(sample) > p.cfg.SummarySampleRows {
		sample = sample[:p.cfg.SummarySampleRows]
	}
	data, err := json.Marshal(sample)
	if err != nil {
		return "", fmt.Errorf("encode summary sample: %w", err)
	}

	prompt := fmt.Sprintf("The user's question was: %q\nThe data retrieved from the database (JSON):\n%s\n\nYour short answer:", question, data)
	raw, err := p.completer.Complete(ctx, summarySystemPrompt, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, p.temperature)
	if err != nil {
		if _, ok := apperrors.As(err); ok {
			return "", err
		}
		return "", apperrors.BackendUnavailable("summary request failed", err)
	}

	summary := strings.TrimSpace(llm.StripThinking(raw))
	if summary == "" {
		p.logger.Warn("Empty summary from model, using fallback text")
		return fallbackSummary, nil
	}
	return summary, nil
}

// IsPlottable reports whether the result has exactly two columns and the
// second holds numbers in every non-null cell, with at least one non-null.
func IsPlottable(result *datasource.QueryExecutionResult) bool {
	if result == nil || len(result.Columns) != 2 || len(result.Rows) == 0 {
		return false
	}
	valueCol := result.Columns[1].Name
	seen := false
	for _, row := range result.Rows {
		v := row[valueCol]
		if v == nil {
			continue
		}
		if _, ok := toFloat(v); !ok {
			return false
		}
		seen = true
	}
	return seen
}

var (
	lineCues = []string{"trend", "over time", "dynamics", "timeline", "daily", "weekly", "monthly", "by day", "by month",
		"динамик", "тренд", "по дням", "по неделям", "по месяцам"}
	pieCues = []string{"share", "percentage", "percent", "proportion", "breakdown", "distribution",
		"доля", "доли", "процент", "распределение"}
	barCues = []string{"compare", "comparison", "versus", " vs ", "ranking", "rank", "top ",
		"сравн", "рейтинг", "топ"}
	dateNameHints = []string{"date", "day", "week", "month", "year", "time", "period", "дата"}
)

// DetectChartKind picks the chart kind from question cues, then from the
// first column, defaulting to bar.
func DetectChartKind(question string, result *datasource.QueryExecutionResult) models.ChartKind {
	q := " " + strings.ToLower(question) + " "
	switch {
	case containsAny(q, lineCues):
		return models.ChartLine
	case containsAny(q, pieCues):
		return models.ChartPie
	case containsAny(q, barCues):
		return models.ChartBar
	}
	if result != nil && len(result.Columns) > 0 && isDateLike(result) {
		return models.ChartLine
	}
	return models.ChartBar
}

func containsAny(s string, cues []string) bool {
	for _, c := range cues {
		if strings.Contains(s, c) {
			return true
		}
	}
	return false
}

func isDateLike(result *datasource.QueryExecutionResult) bool {
	col := result.Columns[0]
	typ := strings.ToUpper(col.Type)
	if strings.Contains(typ, "DATE") || strings.Contains(typ, "TIME") {
		return true
	}
	if len(result.Rows) > 0 {
		if _, ok := result.Rows[0][col.Name].(time.Time); ok {
			return true
		}
	}
	return containsAny(strings.ToLower(col.Name), dateNameHints)
}

// BuildChart builds the chart payload. Rows with a null value are left out.
// Categorical charts with more points than displayCap keep the displayCap
// largest values in descending order and disclose the cut in the title.
func BuildChart(question string, result *datasource.QueryExecutionResult, kind models.ChartKind, displayCap int) *models.Chart {
	xCol, yCol := result.Columns[0].Name, result.Columns[1].Name

	type point struct {
		x any
		y float64
	}
	points := make([]point, 0, len(result.Rows))
	for _, row := range result.Rows {
		y, ok := toFloat(row[yCol])
		if !ok {
			continue
		}
		points = append(points, point{x: chartValue(row[xCol]), y: y})
	}

	chart := &models.Chart{
		Kind:   kind,
		Title:  question,
		XLabel: HumanizeLabel(xCol),
		YLabel: HumanizeLabel(yCol),
	}

	if kind.Categorical() && displayCap > 0 && len(points) > displayCap {
		sort.SliceStable(points, func(i, j int) bool { return points[i].y > points[j].y })
		chart.Title = fmt.Sprintf("%s (top %d of %d)", question, displayCap, len(points))
		chart.Truncated = true
		points = points[:displayCap]
	}

	chart.X = make([]any, len(points))
	chart.Y = make([]float64, len(points))
	for i, pt := range points {
		chart.X[i] = pt.x
		chart.Y[i] = pt.y
	}
	return chart
}

func chartValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format(time.DateOnly)
		}
		return val.Format(time.RFC3339)
	case []byte:
		return string(val)
	default:
		return v
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// HumanizeLabel turns a column name into an axis label: "daily_spend" -> "Daily Spend".
func HumanizeLabel(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// RenderMarkdownTable renders every row of the result as a Markdown table.
func RenderMarkdownTable(result *datasource.QueryExecutionResult) string {
	names := result.ColumnNames()
	var b strings.Builder

	b.WriteString("|")
	for _, n := range names {
		b.WriteString(" " + markdownCell(n) + " |")
	}
	b.WriteString("\n|")
	for range names {
		b.WriteString(" --- |")
	}
	for _, row := range result.Rows {
		b.WriteString("\n|")
		for _, n := range names {
			b.WriteString(" " + markdownCell(formatCell(row[n])) + " |")
		}
	}
	return b.String()
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case time.Time:
		return chartValue(val).(string)
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(val))
	default:
		return fmt.Sprint(val)
	}
}

func markdownCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}
