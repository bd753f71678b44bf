package repositories

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// ConversationRepository reads and appends chat history.
type ConversationRepository interface {
	// EnsureSession creates the session row if it does not exist yet.
	EnsureSession(ctx context.Context, sessionID uuid.UUID, title string) error
	// AppendTurn records one message in the session.
	AppendTurn(ctx context.Context, sessionID uuid.UUID, turn models.ConversationTurn) error
	// RecentTurns returns at most limit of the newest turns, oldest first.
	RecentTurns(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ConversationTurn, error)
}

type conversationRepository struct {
	db Querier
}

// NewConversationRepository creates a ConversationRepository over the given store.
func NewConversationRepository(db Querier) ConversationRepository {
	return &conversationRepository{db: db}
}

var _ ConversationRepository = (*conversationRepository)(nil)

func (r *conversationRepository) EnsureSession(ctx context.Context, sessionID uuid.UUID, title string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO chat_sessions (id, title) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`, sessionID, title)
	if err != nil {
		return fmt.Errorf("failed to ensure session: %w", err)
	}
	return nil
}

func (r *conversationRepository) AppendTurn(ctx context.Context, sessionID uuid.UUID, turn models.ConversationTurn) error {
	var sqlQuery *string
	if turn.SQL != "" {
		sqlQuery = &turn.SQL
	}
	query := `
		INSERT INTO chat_messages (session_id, role, content, sql_query, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))`

	var createdAt any
	if !turn.CreatedAt.IsZero() {
		createdAt = turn.CreatedAt
	}
	if _, err := r.db.Exec(ctx, query, sessionID, string(turn.Role), turn.Content, sqlQuery, createdAt); err != nil {
		return fmt.Errorf("failed to append turn: %w", mapError(err))
	}
	return nil
}

func (r *conversationRepository) RecentTurns(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ConversationTurn, error) {
	if limit <= 0 {
		return nil, nil
	}

	// Newest first so LIMIT keeps the tail of the conversation; reversed below.
	query := `
		SELECT role, content, COALESCE(sql_query, ''), created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent turns: %w", err)
	}
	defer rows.Close()

	var turns []models.ConversationTurn
	for rows.Next() {
		var t models.ConversationTurn
		var role string
		if err := rows.Scan(&role, &t.Content, &t.SQL, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Role = models.Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}

	slices.Reverse(turns)
	return turns, nil
}
