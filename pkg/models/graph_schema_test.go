package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateGraph(t *testing.T) {
	valid := json.RawMessage(`{
		"nodes": [
			{"id": "start", "data": {"type": "start", "title": "Start"}},
			{"id": "end", "data": {"type": "end"}}
		],
		"edges": [{"source": "start", "target": "end"}]
	}`)

	assert.NoError(t, ValidateGraph(valid))
}

func TestValidateGraph_Invalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"no nodes", `{"edges": []}`},
		{"node missing id", `{"nodes": [{"data": {"type": "start"}}]}`},
		{"node missing type", `{"nodes": [{"id": "a", "data": {}}]}`},
		{"edge missing target", `{"nodes": [], "edges": [{"source": "a"}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, ValidateGraph(json.RawMessage(tc.raw)))
		})
	}
}

func TestStatusTerminality(t *testing.T) {
	assert.False(t, WorkflowRunStatusRunning.IsTerminal())
	assert.True(t, WorkflowRunStatusSucceeded.IsTerminal())
	assert.True(t, WorkflowRunStatusFailed.IsTerminal())
	assert.True(t, WorkflowRunStatusStopped.IsTerminal())

	assert.False(t, NodeExecutionStatusRunning.IsTerminal())
	assert.True(t, NodeExecutionStatusSucceeded.IsTerminal())
	assert.True(t, NodeExecutionStatusFailed.IsTerminal())
}
