package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/repositories"
	"github.com/ekaya-inc/ekaya-insights/pkg/services"
)

type mockResolver struct {
	target *services.ExecutionTarget
	err    error
	calls  int
}

func (m *mockResolver) Resolve(ctx context.Context) (*services.ExecutionTarget, error) {
	m.calls++
	return m.target, m.err
}

type mockRetriever struct {
	tables []*models.CuratedTable
	err    error
	calls  int
}

func (m *mockRetriever) FindRelevantTables(ctx context.Context, dataSourceID uuid.UUID, question string) ([]*models.CuratedTable, error) {
	m.calls++
	return m.tables, m.err
}

// mockGenerator returns results in order; the last one repeats.
type mockGenerator struct {
	results []generatorResult

	calls       int
	lastHistory models.History
	lastPrompt  *services.CompiledPrompt
}

type generatorResult struct {
	sql string
	err error
}

func (m *mockGenerator) Generate(ctx context.Context, prompt *services.CompiledPrompt, question string, history models.History) (string, error) {
	r := m.results[min(m.calls, len(m.results)-1)]
	m.calls++
	m.lastHistory = history
	m.lastPrompt = prompt
	return r.sql, r.err
}

type mockExecutor struct {
	executeFunc func(ctx context.Context, target *services.ExecutionTarget, query string) (*services.ExecutionResult, error)
	calls       int
	queries     []string
}

func (m *mockExecutor) Execute(ctx context.Context, target *services.ExecutionTarget, query string) (*services.ExecutionResult, error) {
	m.calls++
	m.queries = append(m.queries, query)
	return m.executeFunc(ctx, target, query)
}

type mockConversations struct {
	turns     []models.ConversationTurn
	lastLimit int
}

func (m *mockConversations) EnsureSession(ctx context.Context, sessionID uuid.UUID, title string) error {
	return nil
}

func (m *mockConversations) AppendTurn(ctx context.Context, sessionID uuid.UUID, turn models.ConversationTurn) error {
	m.turns = append(m.turns, turn)
	return nil
}

func (m *mockConversations) RecentTurns(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ConversationTurn, error) {
	m.lastLimit = limit
	if len(m.turns) > limit {
		return m.turns[len(m.turns)-limit:], nil
	}
	return m.turns, nil
}

var _ repositories.ConversationRepository = (*mockConversations)(nil)

type mockOutcomes struct {
	mu        sync.Mutex
	persisted []*models.PipelineOutcome
	err       error
}

func (m *mockOutcomes) Persist(ctx context.Context, outcome *models.PipelineOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.persisted = append(m.persisted, outcome)
	return nil
}

func (m *mockOutcomes) GetByAttempt(ctx context.Context, sessionID uuid.UUID, attemptID string) (*models.PipelineOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.persisted {
		if o.SessionID == sessionID && o.AttemptID == attemptID {
			return o, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockOutcomes) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.PipelineOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PipelineOutcome
	for _, o := range m.persisted {
		if o.SessionID == sessionID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockOutcomes) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.persisted)
}

var _ repositories.OutcomeRepository = (*mockOutcomes)(nil)
