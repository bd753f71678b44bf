package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/services/pipeline"
)

func TestReadQuestions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.txt")
	require.NoError(t, os.WriteFile(path, []byte("Top channels\n\n  Daily spend trend  \n"), 0o600))

	questions, err := readQuestions(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Top channels", "Daily spend trend"}, questions)

	_, err = readQuestions(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestPrintOutcome(t *testing.T) {
	sql := "SELECT channel FROM tv LIMIT 1000"
	session := uuid.MustParse("6f1c9a52-3d2e-4c5b-9a8e-1f2d3c4b5a69")

	tests := []struct {
		name    string
		outcome *models.PipelineOutcome
		want    []string
	}{
		{
			name: "done",
			outcome: &models.PipelineOutcome{
				SessionID: session, FinalState: string(pipeline.StateDone), Summary: "First leads.", SQL: &sql,
				Chart: &models.Chart{Kind: models.ChartBar, Title: "Top channels"},
			},
			want: []string{"First leads.", "SQL: " + sql, "Chart:", `"kind": "bar"`, "Session: " + session.String()},
		},
		{
			name: "error",
			outcome: &models.PipelineOutcome{
				SessionID: session, FinalState: string(pipeline.StateError), SQL: &sql,
				Error: &models.OutcomeError{Kind: "forbidden_keyword", Message: "forbidden keyword DROP"},
			},
			want: []string{"Error (forbidden_keyword): forbidden keyword DROP", "SQL: " + sql},
		},
		{
			name:    "cancelled",
			outcome: &models.PipelineOutcome{FinalState: string(pipeline.StateCancelled)},
			want:    []string{"Cancelled."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, printOutcome(&buf, tt.outcome, false))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestPrintOutcome_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printOutcome(&buf, &models.PipelineOutcome{FinalState: "DONE", Summary: "ok"}, true))
	assert.Contains(t, buf.String(), `"final_state": "DONE"`)
	assert.Contains(t, buf.String(), `"sql": null`)
}

func TestAskCmd_RequiresQuestionOrBatch(t *testing.T) {
	cmd := newAskCmd(&env{})
	assert.Error(t, cmd.Args(cmd, nil))
	assert.NoError(t, cmd.Args(cmd, []string{"Top channels"}))

	require.NoError(t, cmd.Flags().Set("batch", "questions.txt"))
	assert.NoError(t, cmd.Args(cmd, nil))
	assert.Error(t, cmd.Args(cmd, []string{"Top channels"}))
}

func TestRootCmd_RegistersCommands(t *testing.T) {
	root := NewRootCmd("test")
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"ask", "reindex", "migrate", "check"}, names)
}

type recordingConversations struct {
	titles []string
	turns  []models.ConversationTurn
}

func (r *recordingConversations) EnsureSession(ctx context.Context, sessionID uuid.UUID, title string) error {
	r.titles = append(r.titles, title)
	return nil
}

func (r *recordingConversations) AppendTurn(ctx context.Context, sessionID uuid.UUID, turn models.ConversationTurn) error {
	r.turns = append(r.turns, turn)
	return nil
}

func (r *recordingConversations) RecentTurns(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ConversationTurn, error) {
	return r.turns, nil
}

func TestRecordTurns(t *testing.T) {
	sql := "SELECT city, label FROM ooh LIMIT 1000"
	table := "\n\n| city | label |\n| --- | --- |\n| Moscow | big |"

	t.Run("assistant turn keeps the narrative only", func(t *testing.T) {
		conversations := &recordingConversations{}
		recordTurns(context.Background(), conversations, &models.PipelineOutcome{
			SessionID:  uuid.New(),
			Question:   "Cities",
			SQL:        &sql,
			Summary:    "One city." + table,
			Narrative:  "One city.",
			FinalState: string(pipeline.StateDone),
		}, zap.NewNop())

		require.Len(t, conversations.turns, 2)
		assert.Equal(t, models.ConversationTurn{Role: models.RoleUser, Content: "Cities"}, conversations.turns[0])
		assert.Equal(t, models.ConversationTurn{Role: models.RoleAssistant, Content: "One city.", SQL: sql}, conversations.turns[1])
		assert.Equal(t, []string{"Cities"}, conversations.titles)
	})

	t.Run("summary without narrative is bounded", func(t *testing.T) {
		conversations := &recordingConversations{}
		recordTurns(context.Background(), conversations, &models.PipelineOutcome{
			SessionID:  uuid.New(),
			Question:   "Cities",
			Summary:    strings.Repeat("x", maxTurnLength*3),
			FinalState: string(pipeline.StateDone),
		}, zap.NewNop())

		require.Len(t, conversations.turns, 2)
		assert.LessOrEqual(t, len(conversations.turns[1].Content), maxTurnLength+len("..."))
	})

	t.Run("failed outcomes are not recorded", func(t *testing.T) {
		conversations := &recordingConversations{}
		recordTurns(context.Background(), conversations, &models.PipelineOutcome{
			SessionID:  uuid.New(),
			Question:   "Cities",
			FinalState: string(pipeline.StateError),
		}, zap.NewNop())
		assert.Empty(t, conversations.turns)
	})
}
