package claimgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoute_Table(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  Stage
	}{
		{"fresh run extracts", State{}, StageExtract},
		{"code", State{Next: ActionCode}, StageCode},
		{"retry_code goes to coder", State{Next: ActionRetryCode}, StageCode},
		{"audit", State{Next: ActionAudit}, StageAudit},
		{"end terminates", State{Next: ActionEnd}, StageTerminate},
		{"error wins over unset", State{Error: "boom"}, StageTerminate},
		{"error wins over code", State{Next: ActionCode, Error: "boom"}, StageTerminate},
		{"error wins over retry", State{Next: ActionRetryCode, Error: "boom"}, StageTerminate},
		{"out of range terminates", State{Next: Action(42)}, StageTerminate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Route(tt.state))
		})
	}
}

// TestRoute_Idempotent checks Route keeps no hidden state.
func TestRoute_Idempotent(t *testing.T) {
	states := []State{
		{},
		{Next: ActionCode},
		{Next: ActionAudit, RetryCount: 2, MaxRetries: 3},
		{Next: ActionRetryCode, RetryCount: 1, MaxRetries: 1},
		{Next: ActionEnd},
		{Error: "x"},
	}

	for _, s := range states {
		first := Route(s)
		second := Route(s)
		assert.Equal(t, first, second)
	}
}

func TestStage_String(t *testing.T) {
	assert.Equal(t, "extract", StageExtract.String())
	assert.Equal(t, "code", StageCode.String())
	assert.Equal(t, "audit", StageAudit.String())
	assert.Equal(t, "terminate", StageTerminate.String())
	assert.Equal(t, "unknown", Stage(99).String())
}
