package toolbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolHandler(t *testing.T) {
	tool := Tool{
		Name:        "echo",
		Description: "Echoes input back",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`),
		Handler: func(_ context.Context, input json.RawMessage) (string, error) {
			var params struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(input, &params); err != nil {
				return "", err
			}
			return params.Text, nil
		},
	}

	result, err := tool.Handler(context.Background(), json.RawMessage(`{"text":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}

func TestToolSchema_FieldNames(t *testing.T) {
	tool := Tool{
		Name:        "read_file",
		Description: "Read a file",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
	}

	data, err := json.Marshal(tool.Schema())
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"name": "read_file",
		"description": "Read a file",
		"input_schema": {"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}
	}`, string(data))
}

func TestToolSchema_DefaultsToEmptyObject(t *testing.T) {
	s := Tool{Name: "noop"}.Schema()

	assert.JSONEq(t, `{"type":"object"}`, string(s.InputSchema))
}
