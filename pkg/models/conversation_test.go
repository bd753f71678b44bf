package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationTurn_Render(t *testing.T) {
	assert.Equal(t, "how many ads?", ConversationTurn{Role: RoleUser, Content: "how many ads?", SQL: "ignored"}.Render())
	assert.Equal(t, "There are 12.\n(SQL: SELECT count(id) FROM ads;)",
		ConversationTurn{Role: RoleAssistant, Content: "There are 12.", SQL: "SELECT count(id) FROM ads;"}.Render())
	assert.Equal(t, "Sorry.", ConversationTurn{Role: RoleAssistant, Content: "Sorry."}.Render())
}

func TestNewHistory_KeepsNewestWindow(t *testing.T) {
	turns := []ConversationTurn{
		{Role: RoleUser, Content: "1"},
		{Role: RoleAssistant, Content: "2"},
		{Role: RoleUser, Content: "3"},
		{Role: RoleAssistant, Content: "4"},
	}

	h := NewHistory(turns, 2)
	assert.Equal(t, 2, h.Len())
	got := h.Turns()
	assert.Equal(t, "3", got[0].Content)
	assert.Equal(t, "4", got[1].Content)

	assert.Equal(t, 4, NewHistory(turns, 0).Len())
}

func TestHistory_IsImmutable(t *testing.T) {
	turns := []ConversationTurn{{Role: RoleUser, Content: "original"}}
	h := NewHistory(turns, 6)

	turns[0].Content = "mutated source"
	out := h.Turns()
	out[0].Content = "mutated copy"

	assert.Equal(t, "original", h.Turns()[0].Content)
}

func TestChartKind_Categorical(t *testing.T) {
	assert.True(t, ChartBar.Categorical())
	assert.True(t, ChartPie.Categorical())
	assert.False(t, ChartLine.Categorical())
}
