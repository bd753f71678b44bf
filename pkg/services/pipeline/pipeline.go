package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/config"
	"github.com/ekaya-inc/ekaya-insights/pkg/logging"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/observability"
	"github.com/ekaya-inc/ekaya-insights/pkg/repositories"
	"github.com/ekaya-inc/ekaya-insights/pkg/retry"
	"github.com/ekaya-inc/ekaya-insights/pkg/services"
	sqlpkg "github.com/ekaya-inc/ekaya-insights/pkg/sql"
)

// internalErrorKind labels failures that carry no classification.
const internalErrorKind = "internal"

// maxRawOutputLength bounds the model text attached to a generation failure.
const maxRawOutputLength = 2000

// Dependencies are the collaborators of one Pipeline.
type Dependencies struct {
	Resolver      services.DataSourceResolver
	Retriever     services.SchemaRetriever
	Compiler      *services.PromptCompiler
	Generator     services.SQLGenerator
	Validator     *sqlpkg.Validator
	Executor      services.QueryExecutor
	Postprocessor *services.Postprocessor
	Conversations repositories.ConversationRepository
	Outcomes      repositories.OutcomeRepository
	Tracker       AttemptTracker
}

// Request identifies one invocation.
type Request struct {
	SessionID uuid.UUID
	AttemptID string
	Question  string
}

// Pipeline runs the ask state machine. It holds no per-invocation state and
// is safe for concurrent use.
type Pipeline struct {
	deps   Dependencies
	cfg    config.PipelineConfig
	retry  *retry.Config
	stages []stage
	logger *zap.Logger
}

type stage struct {
	state State
	run   func(ctx context.Context, inv *invocation) error
}

// invocation accumulates the outputs of completed stages.
type invocation struct {
	req     Request
	state   State
	target  *services.ExecutionTarget
	history models.History
	tables  []*models.CuratedTable
	prompt  *services.CompiledPrompt
	sql     string
	result  *services.ExecutionResult
	answer  *services.Answer
}

func New(deps Dependencies, cfg config.PipelineConfig, logger *zap.Logger) *Pipeline {
	p := &Pipeline{
		deps: deps,
		cfg:  cfg,
		retry: &retry.Config{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: cfg.InitialBackoff,
			MaxDelay:     cfg.MaxBackoff,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		logger: logger.Named("pipeline"),
	}
	p.stages = []stage{
		{StateInit, p.initialize},
		{StateRetrieving, p.retrieve},
		{StateGenerating, p.generate},
		{StateValidating, p.validate},
		{StateExecuting, p.execute},
		{StateSummarizing, p.summarize},
	}
	return p
}

// Ask starts a new attempt for the session and runs it. Any attempt still
// running for the session is superseded.
func (p *Pipeline) Ask(ctx context.Context, sessionID uuid.UUID, question string) (*models.PipelineOutcome, error) {
	attemptID, err := p.deps.Tracker.Begin(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, Request{SessionID: sessionID, AttemptID: attemptID, Question: question})
}

// Run drives one invocation to a terminal state. DONE and ERROR outcomes are
// persisted exactly once before they are returned. A CANCELLED outcome is
// returned without being persisted. The returned error is non-nil only when
// the request is invalid or the outcome could not be persisted.
func (p *Pipeline) Run(ctx context.Context, req Request) (*models.PipelineOutcome, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, errors.New("question must not be empty")
	}
	if req.AttemptID == "" {
		return nil, errors.New("attempt id must not be empty")
	}

	inv := &invocation{req: req, state: StateInit}
	for _, st := range p.stages {
		if err := p.step(ctx, inv, st); err != nil {
			if isCancellation(ctx, err) {
				return p.cancelled(inv, err), nil
			}
			return p.fail(ctx, inv, err)
		}
	}

	if err := p.checkpoint(ctx, req); err != nil {
		if isCancellation(ctx, err) {
			return p.cancelled(inv, err), nil
		}
		return p.fail(ctx, inv, err)
	}
	return p.finish(ctx, inv)
}

// step enters st after a checkpoint and retries transient failures.
func (p *Pipeline) step(ctx context.Context, inv *invocation, st stage) error {
	inv.state = st.state
	p.logger.Debug("Entering state",
		zap.String("attempt_id", inv.req.AttemptID),
		zap.String("state", string(st.state)))

	start := time.Now()
	err := retry.Do(ctx, p.retry, apperrors.IsRetryable, p.onRetry(inv), func(attempt int) error {
		if err := p.checkpoint(ctx, inv.req); err != nil {
			return err
		}
		return st.run(ctx, inv)
	})
	observability.ObserveStage(string(st.state), time.Since(start))
	return err
}

func (p *Pipeline) onRetry(inv *invocation) retry.Hook {
	return func(attempt int, err error, wait time.Duration) {
		kind := string(apperrors.KindOf(err))
		observability.IncrementRetry(string(inv.state), kind)
		p.logger.Warn("Retrying transient failure",
			zap.String("attempt_id", inv.req.AttemptID),
			zap.String("state", string(inv.state)),
			zap.String("kind", kind),
			zap.Int("retry", attempt+1),
			zap.Duration("wait", wait),
			zap.String("error", logging.SanitizeError(err)))
	}
}

// checkpoint fails with a cancelled error when ctx is done or the attempt is
// no longer the session's current one.
func (p *Pipeline) checkpoint(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Cancelled(err.Error())
	}
	current, ok, err := p.deps.Tracker.Current(ctx, req.SessionID)
	if err != nil {
		return apperrors.BackendUnavailable("failed to read attempt marker", err)
	}
	if !ok || current != req.AttemptID {
		return apperrors.Cancelled(fmt.Sprintf("attempt %s is no longer current", req.AttemptID))
	}
	return nil
}

func isCancellation(ctx context.Context, err error) bool {
	return apperrors.IsKind(err, apperrors.KindCancelled) || ctx.Err() != nil
}

func (p *Pipeline) initialize(ctx context.Context, inv *invocation) error {
	target, err := p.deps.Resolver.Resolve(ctx)
	if err != nil {
		return err
	}
	turns, err := p.deps.Conversations.RecentTurns(ctx, inv.req.SessionID, p.cfg.HistoryWindow)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	inv.target = target
	inv.history = models.NewHistory(turns, p.cfg.HistoryWindow)
	return nil
}

func (p *Pipeline) retrieve(ctx context.Context, inv *invocation) error {
	tables, err := p.deps.Retriever.FindRelevantTables(ctx, inv.target.DataSourceID, inv.req.Question)
	if err != nil {
		return err
	}
	inv.tables = tables
	return nil
}

func (p *Pipeline) generate(ctx context.Context, inv *invocation) error {
	prompt, err := p.deps.Compiler.Compile(inv.tables, inv.target.Dialect())
	if err != nil {
		return err
	}
	query, err := p.deps.Generator.Generate(ctx, prompt, inv.req.Question, inv.history)
	if err != nil {
		return err
	}
	inv.prompt = prompt
	inv.sql = query
	return nil
}

func (p *Pipeline) validate(_ context.Context, inv *invocation) error {
	_, err := p.deps.Validator.Validate(inv.sql, inv.prompt.Tables)
	return err
}

func (p *Pipeline) execute(ctx context.Context, inv *invocation) error {
	res, err := p.deps.Executor.Execute(ctx, inv.target, inv.sql)
	if err != nil {
		return err
	}
	inv.result = res
	inv.sql = res.SQL
	observability.ObserveRows(res.Result.RowCount)
	return nil
}

func (p *Pipeline) summarize(ctx context.Context, inv *invocation) error {
	answer, err := p.deps.Postprocessor.Process(ctx, inv.req.Question, inv.result.Result)
	if err != nil {
		return err
	}
	inv.answer = answer
	return nil
}

func (p *Pipeline) baseOutcome(inv *invocation, state State) *models.PipelineOutcome {
	return &models.PipelineOutcome{
		SessionID:  inv.req.SessionID,
		AttemptID:  inv.req.AttemptID,
		Question:   inv.req.Question,
		FinalState: string(state),
	}
}

func (p *Pipeline) finish(ctx context.Context, inv *invocation) (*models.PipelineOutcome, error) {
	outcome := p.baseOutcome(inv, StateDone)
	sql := inv.sql
	outcome.SQL = &sql
	outcome.RowCount = inv.result.Result.RowCount
	outcome.Chart = inv.answer.Chart
	outcome.Summary = inv.answer.Text
	outcome.Narrative = inv.answer.Narrative

	if err := p.persist(ctx, inv, outcome); err != nil {
		return outcome, err
	}
	observability.ObserveOutcome(string(StateDone), "")
	p.logger.Info("Pipeline finished",
		zap.String("attempt_id", inv.req.AttemptID),
		zap.Int("row_count", outcome.RowCount),
		zap.Bool("chart", outcome.Chart != nil))
	return outcome, nil
}

// fail persists err as the outcome of inv, unless the attempt was
// superseded in the meantime.
func (p *Pipeline) fail(ctx context.Context, inv *invocation, err error) (*models.PipelineOutcome, error) {
	if cerr := p.checkpoint(ctx, inv.req); apperrors.IsKind(cerr, apperrors.KindCancelled) {
		return p.cancelled(inv, cerr), nil
	}

	failedIn := inv.state
	outcome := p.baseOutcome(inv, StateError)
	outcome.Error = outcomeError(err)
	if sql := failedSQL(inv, err); sql != "" {
		outcome.SQL = &sql
	}

	p.logger.Warn("Pipeline failed",
		zap.String("attempt_id", inv.req.AttemptID),
		zap.String("state", string(failedIn)),
		zap.String("kind", outcome.Error.Kind),
		zap.String("error", logging.SanitizeError(err)))

	inv.state = StateError
	if perr := p.persist(ctx, inv, outcome); perr != nil {
		return outcome, perr
	}
	observability.ObserveOutcome(string(StateError), outcome.Error.Kind)
	return outcome, nil
}

func (p *Pipeline) cancelled(inv *invocation, cause error) *models.PipelineOutcome {
	p.logger.Info("Pipeline cancelled",
		zap.String("attempt_id", inv.req.AttemptID),
		zap.String("state", string(inv.state)),
		zap.String("reason", logging.SanitizeError(cause)))
	observability.ObserveOutcome(string(StateCancelled), string(apperrors.KindCancelled))
	inv.state = StateCancelled
	return p.baseOutcome(inv, StateCancelled)
}

// persist writes the outcome and clears the attempt marker. Both survive
// cancellation of ctx so a terminal outcome is never half recorded.
func (p *Pipeline) persist(ctx context.Context, inv *invocation, outcome *models.PipelineOutcome) error {
	ctx = context.WithoutCancel(ctx)
	if err := p.deps.Outcomes.Persist(ctx, outcome); err != nil {
		return fmt.Errorf("persist outcome: %w", err)
	}
	if err := p.deps.Tracker.Clear(ctx, inv.req.SessionID, inv.req.AttemptID); err != nil {
		p.logger.Warn("Failed to clear attempt marker",
			zap.String("attempt_id", inv.req.AttemptID),
			zap.String("error", logging.SanitizeError(err)))
	}
	return nil
}

func outcomeError(err error) *models.OutcomeError {
	appErr, ok := apperrors.As(err)
	if !ok {
		return &models.OutcomeError{Kind: internalErrorKind, Message: logging.SanitizeError(err)}
	}

	msg := appErr.Message
	if appErr.Cause != nil {
		msg += ": " + logging.SanitizeError(appErr.Cause)
	}
	if appErr.Kind == apperrors.KindGeneration && appErr.RawOutput != "" {
		msg += "\n\nModel output:\n" + logging.TruncateString(appErr.RawOutput, maxRawOutputLength)
	}
	return &models.OutcomeError{Kind: string(appErr.Kind), Message: msg}
}

// failedSQL prefers the statement attached to the error, which for execution
// failures is the guarded form actually sent.
func failedSQL(inv *invocation, err error) string {
	if appErr, ok := apperrors.As(err); ok && appErr.SQL != "" {
		return appErr.SQL
	}
	return inv.sql
}
