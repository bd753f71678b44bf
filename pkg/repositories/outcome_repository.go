package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// OutcomeRepository is the sink for pipeline outcomes. Outcomes are written
// once and never updated.
type OutcomeRepository interface {
	// Persist inserts the outcome. A second outcome for the same session and
	// attempt fails with apperrors.ErrConflict.
	Persist(ctx context.Context, outcome *models.PipelineOutcome) error
	GetByAttempt(ctx context.Context, sessionID uuid.UUID, attemptID string) (*models.PipelineOutcome, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.PipelineOutcome, error)
}

type outcomeRepository struct {
	db Querier
}

// NewOutcomeRepository creates an OutcomeRepository over the given store.
func NewOutcomeRepository(db Querier) OutcomeRepository {
	return &outcomeRepository{db: db}
}

var _ OutcomeRepository = (*outcomeRepository)(nil)

func (r *outcomeRepository) Persist(ctx context.Context, o *models.PipelineOutcome) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	var chart any
	if o.Chart != nil {
		b, err := json.Marshal(o.Chart)
		if err != nil {
			return fmt.Errorf("failed to marshal chart: %w", err)
		}
		chart = b
	}

	var errKind, errMessage *string
	if o.Error != nil {
		errKind, errMessage = &o.Error.Kind, &o.Error.Message
	}

	query := `
		INSERT INTO pipeline_outcomes (
			id, session_id, attempt_id, question, sql_query, row_count, chart,
			summary, error_kind, error_message, final_state, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(ctx, query,
		o.ID, o.SessionID, o.AttemptID, o.Question, o.SQL, o.RowCount, chart,
		o.Summary, errKind, errMessage, o.FinalState, o.CreatedAt,
	)
	if err != nil {
		mapped := mapError(err)
		if errors.Is(mapped, apperrors.ErrConflict) {
			return fmt.Errorf("outcome for attempt %s already persisted: %w", o.AttemptID, mapped)
		}
		return fmt.Errorf("failed to persist outcome: %w", err)
	}
	return nil
}

const outcomeColumns = `id, session_id, attempt_id, question, sql_query, row_count, chart,
	summary, error_kind, error_message, final_state, created_at`

func (r *outcomeRepository) GetByAttempt(ctx context.Context, sessionID uuid.UUID, attemptID string) (*models.PipelineOutcome, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+outcomeColumns+`
		FROM pipeline_outcomes
		WHERE session_id = $1 AND attempt_id = $2`, sessionID, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to get outcome: %w", err)
	}
	outcomes, err := collectOutcomes(rows)
	if err != nil {
		return nil, err
	}
	if len(outcomes) == 0 {
		return nil, apperrors.ErrNotFound
	}
	return outcomes[0], nil
}

func (r *outcomeRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.PipelineOutcome, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+outcomeColumns+`
		FROM pipeline_outcomes
		WHERE session_id = $1
		ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	return collectOutcomes(rows)
}

type outcomeRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

func collectOutcomes(rows outcomeRows) ([]*models.PipelineOutcome, error) {
	defer rows.Close()

	var outcomes []*models.PipelineOutcome
	for rows.Next() {
		var o models.PipelineOutcome
		var chart []byte
		var errKind, errMessage *string
		if err := rows.Scan(
			&o.ID, &o.SessionID, &o.AttemptID, &o.Question, &o.SQL, &o.RowCount, &chart,
			&o.Summary, &errKind, &errMessage, &o.FinalState, &o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		if len(chart) > 0 {
			o.Chart = &models.Chart{}
			if err := json.Unmarshal(chart, o.Chart); err != nil {
				return nil, fmt.Errorf("failed to unmarshal chart: %w", err)
			}
		}
		if errKind != nil {
			o.Error = &models.OutcomeError{Kind: *errKind}
			if errMessage != nil {
				o.Error.Message = *errMessage
			}
		}
		outcomes = append(outcomes, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}
	return outcomes, nil
}
