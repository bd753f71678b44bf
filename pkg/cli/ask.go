package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/logging"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/observability"
	"github.com/ekaya-inc/ekaya-insights/pkg/repositories"
	"github.com/ekaya-inc/ekaya-insights/pkg/services/pipeline"
	"github.com/ekaya-inc/ekaya-insights/pkg/services/workqueue"
)

// sessionTitleLength bounds the title derived from a session's first question.
const sessionTitleLength = 80

// maxTurnLength bounds assistant history text when no narrative is available.
const maxTurnLength = 1000

func newAskCmd(e *env) *cobra.Command {
	var (
		sessionFlag  string
		batchFile    string
		asJSON       bool
		serveMetrics bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question with SQL against the active data source",
		Long: `Answer a natural-language question. The question is turned into one read-only
SQL statement, executed against the active data source and summarized.

With --batch, every non-empty line of the file is asked in its own session,
running pipeline.workers questions at a time.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if batchFile == "" && len(args) == 0 {
				return fmt.Errorf("a question or --batch is required")
			}
			if batchFile != "" && len(args) > 0 {
				return fmt.Errorf("pass either a question or --batch, not both")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, e)
			if err != nil {
				return err
			}
			defer a.Close()

			if serveMetrics || e.cfg.Metrics.Enabled {
				metricsCtx, stop := context.WithCancel(ctx)
				defer stop()
				go func() {
					if err := observability.Serve(metricsCtx, e.cfg.Metrics.Addr, e.logger); err != nil {
						e.logger.Error("Metrics server failed", zap.Error(err))
					}
				}()
			}

			p, err := a.pipeline()
			if err != nil {
				return err
			}

			if batchFile != "" {
				questions, err := readQuestions(batchFile)
				if err != nil {
					return err
				}
				return runBatch(ctx, cmd.OutOrStdout(), a, p, questions, asJSON)
			}

			sessionID := uuid.New()
			if sessionFlag != "" {
				if sessionID, err = uuid.Parse(sessionFlag); err != nil {
					return fmt.Errorf("invalid --session: %w", err)
				}
			}
			question := strings.Join(args, " ")
			outcome, err := p.Ask(ctx, sessionID, question)
			if err != nil {
				return err
			}
			recordTurns(ctx, a.conversations, outcome, e.logger)
			return printOutcome(cmd.OutOrStdout(), outcome, asJSON)
		},
	}

	cmd.Flags().StringVar(&sessionFlag, "session", "", "Session id for follow-up questions (default: new session)")
	cmd.Flags().StringVar(&batchFile, "batch", "", "File with one question per line")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print outcomes as JSON")
	cmd.Flags().BoolVar(&serveMetrics, "serve-metrics", false, "Expose Prometheus metrics on metrics.addr while running")
	return cmd
}

func readQuestions(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	var questions []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if q := strings.TrimSpace(scanner.Text()); q != "" {
			questions = append(questions, q)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	return questions, nil
}

func runBatch(ctx context.Context, out io.Writer, a *app, p *pipeline.Pipeline, questions []string, asJSON bool) error {
	tasks := make([]workqueue.Task, len(questions))
	askTasks := make([]*pipeline.AskTask, len(questions))
	for i, q := range questions {
		askTasks[i] = pipeline.NewAskTask(p, uuid.New(), q)
		tasks[i] = askTasks[i]
	}

	queue := workqueue.New(a.logger,
		workqueue.WithWorkers(a.cfg.Pipeline.Workers),
		workqueue.WithTaskTimeout(a.cfg.Pipeline.TaskTimeout))
	snapshots := queue.Run(ctx, tasks)

	failed := 0
	for i, snap := range snapshots {
		outcome := askTasks[i].Outcome()
		if snap.Status != workqueue.TaskStatusCompleted || outcome == nil {
			failed++
			fmt.Fprintf(out, "## %s\n%s: %s\n\n", questions[i], snap.Status, snap.Error)
			continue
		}
		recordTurns(ctx, a.conversations, outcome, a.logger)
		if !asJSON {
			fmt.Fprintf(out, "## %s\n", questions[i])
		}
		if err := printOutcome(out, outcome, asJSON); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d questions did not complete", failed, len(questions))
	}
	return nil
}

// recordTurns appends the exchange to the session history so follow-up
// questions can refer to it. Failures only cost context and are logged.
func recordTurns(ctx context.Context, conversations repositories.ConversationRepository, outcome *models.PipelineOutcome, logger *zap.Logger) {
	if outcome.FinalState != string(pipeline.StateDone) {
		return
	}
	ctx = context.WithoutCancel(ctx)
	title := logging.TruncateString(outcome.Question, sessionTitleLength)
	if err := conversations.EnsureSession(ctx, outcome.SessionID, title); err != nil {
		logger.Warn("Failed to record session", zap.String("error", logging.SanitizeError(err)))
		return
	}

	assistant := models.ConversationTurn{Role: models.RoleAssistant, Content: turnContent(outcome)}
	if outcome.SQL != nil {
		assistant.SQL = *outcome.SQL
	}
	for _, turn := range []models.ConversationTurn{
		{Role: models.RoleUser, Content: outcome.Question},
		assistant,
	} {
		if err := conversations.AppendTurn(ctx, outcome.SessionID, turn); err != nil {
			logger.Warn("Failed to record turn", zap.String("error", logging.SanitizeError(err)))
			return
		}
	}
}

// turnContent is the assistant text kept in history. Result tables stay out
// so follow-up prompts do not resend every row.
func turnContent(outcome *models.PipelineOutcome) string {
	if outcome.Narrative != "" {
		return outcome.Narrative
	}
	return logging.TruncateString(outcome.Summary, maxTurnLength)
}

func printOutcome(out io.Writer, outcome *models.PipelineOutcome, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	}

	switch outcome.FinalState {
	case string(pipeline.StateCancelled):
		fmt.Fprintln(out, "Cancelled.")
		return nil
	case string(pipeline.StateError):
		fmt.Fprintf(out, "Error (%s): %s\n", outcome.Error.Kind, outcome.Error.Message)
	default:
		fmt.Fprintln(out, outcome.Summary)
	}

	if outcome.SQL != nil {
		fmt.Fprintf(out, "\nSQL: %s\n", *outcome.SQL)
	}
	if outcome.Chart != nil {
		b, err := json.MarshalIndent(outcome.Chart, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal chart: %w", err)
		}
		fmt.Fprintf(out, "\nChart:\n%s\n", b)
	}
	fmt.Fprintf(out, "\nSession: %s\n\n", outcome.SessionID)
	return nil
}
