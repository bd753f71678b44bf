package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/services/workqueue"
)

// AskTask runs one question as a workqueue task.
type AskTask struct {
	workqueue.BaseTask
	pipeline  *Pipeline
	sessionID uuid.UUID
	question  string

	outcome *models.PipelineOutcome
}

func NewAskTask(p *Pipeline, sessionID uuid.UUID, question string) *AskTask {
	return &AskTask{
		BaseTask:  workqueue.NewBaseTask("ask: " + question),
		pipeline:  p,
		sessionID: sessionID,
		question:  question,
	}
}

var _ workqueue.Task = (*AskTask)(nil)

// Execute fails when the outcome could not be produced or recorded. An ERROR
// outcome is a completed task; it is available from Outcome.
func (t *AskTask) Execute(ctx context.Context) error {
	outcome, err := t.pipeline.Ask(ctx, t.sessionID, t.question)
	t.outcome = outcome
	if err != nil {
		return err
	}
	if outcome.FinalState == string(StateCancelled) {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.Canceled) {
			return ctxErr
		}
		return context.Canceled
	}
	return nil
}

// Outcome returns the result of the last Execute, or nil before it ran.
func (t *AskTask) Outcome() *models.PipelineOutcome {
	return t.outcome
}

func (t *AskTask) SessionID() uuid.UUID {
	return t.sessionID
}
