package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripThinking(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"no tags", "SELECT 1", "SELECT 1"},
		{"leading block", "<think>\nthe user wants spend\n</think>\nSELECT spend FROM tv", "SELECT spend FROM tv"},
		{"block in the middle", "Here: <think>hmm</think>SELECT 1", "Here: SELECT 1"},
		{"unterminated block", "SELECT 1 <think>still going", "SELECT 1"},
		{"only thinking", "<think>nothing useful</think>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripThinking(tt.response))
		})
	}
}
