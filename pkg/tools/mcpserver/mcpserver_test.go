package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/germanamz/babycode/pkg/codingtoolbox/filesystem"
	"github.com/germanamz/babycode/pkg/tools/toolbox"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestToolBox() *toolbox.ToolBox {
	tb := toolbox.New()
	tb.Register(
		toolbox.Tool{
			Name:        "echo",
			Description: "Test tool: echo",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"msg":{"type":"string"}},"required":["msg"]}`),
			Handler: func(_ context.Context, input json.RawMessage) (string, error) {
				return string(input), nil
			},
		},
		toolbox.Tool{
			Name:        "fail",
			Description: "Always fails",
			Handler: func(context.Context, json.RawMessage) (string, error) {
				return "", errors.New("tool failed")
			},
		},
	)
	return tb
}

// connectClient serves tb on in-memory transports and returns a client
// session connected to it.
func connectClient(t *testing.T, tb *toolbox.ToolBox) *mcp.ClientSession {
	t.Helper()

	s := New("test-server", "1.0.0", tb)
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- s.run(ctx, serverTransport)
	}()
	t.Cleanup(func() {
		cancel()
		<-serverDone
	})

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return session
}

func callText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()

	require.Len(t, result.Content, 1)
	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)

	return tc.Text
}

func TestListTools(t *testing.T) {
	session := connectClient(t, newTestToolBox())

	result, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Tools, 2)

	byName := make(map[string]*mcp.Tool, len(result.Tools))
	for _, tool := range result.Tools {
		byName[tool.Name] = tool
	}

	assert.Equal(t, "Test tool: echo", byName["echo"].Description)
	assert.Equal(t, "Always fails", byName["fail"].Description)
}

func TestCallTool(t *testing.T) {
	session := connectClient(t, newTestToolBox())

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"msg": "hello"},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.JSONEq(t, `{"msg":"hello"}`, callText(t, result))
}

func TestCallTool_HandlerError(t *testing.T) {
	session := connectClient(t, newTestToolBox())

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "fail",
		Arguments: map[string]any{},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "Error executing fail: tool failed", callText(t, result))
}

func TestCallTool_NotFound(t *testing.T) {
	session := connectClient(t, newTestToolBox())

	_, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "missing",
		Arguments: map[string]any{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestCallTool_FileTools(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha"), 0o600))

	session := connectClient(t, filesystem.New(dir, nil).Tools())

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "read_file",
		Arguments: map[string]any{"path": "a.txt"},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "alpha", callText(t, result))

	result, err = session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "read_file",
		Arguments: map[string]any{"path": "missing.txt"},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, callText(t, result), "missing.txt")
}

func TestIsErrorText(t *testing.T) {
	assert.True(t, isErrorText("Error: Unknown tool: x"))
	assert.True(t, isErrorText("Error executing x: boom"))
	assert.False(t, isErrorText("Successfully wrote to a.txt"))
	assert.False(t, isErrorText(""))
}

func TestRun_CancelledContext(t *testing.T) {
	s := New("srv", "1.0.0", newTestToolBox())
	serverTransport, _ := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.run(ctx, serverTransport)
	assert.ErrorIs(t, err, context.Canceled)
}
