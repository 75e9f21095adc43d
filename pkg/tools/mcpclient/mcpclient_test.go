package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/germanamz/babycode/pkg/chats/content"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serverTool struct {
	tool    *mcp.Tool
	handler mcp.ToolHandler
}

func textTool(name string, fn func(args json.RawMessage) (string, error)) serverTool {
	return serverTool{
		tool: &mcp.Tool{
			Name:        name,
			Description: "Test tool " + name,
			InputSchema: json.RawMessage(`{"type":"object","properties":{"msg":{"type":"string"}}}`),
		},
		handler: func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			out, err := fn(req.Params.Arguments)
			if err != nil {
				return &mcp.CallToolResult{
					Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
					IsError: true,
				}, nil
			}
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: out}}}, nil
		},
	}
}

func echo(args json.RawMessage) (string, error) { return string(args), nil }

// connectTestServer runs an MCP server with the given tools on in-memory
// transports and returns a client connected to it.
func connectTestServer(t *testing.T, tools ...serverTool) *Client {
	t.Helper()

	server := mcp.NewServer(&mcp.Implementation{Name: "test-server", Version: "1.0.0"}, nil)
	for _, st := range tools {
		server.AddTool(st.tool, st.handler)
	}

	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Run(ctx, serverTransport)
	}()
	t.Cleanup(func() {
		cancel()
		<-serverDone
	})

	client, err := connect(ctx, clientTransport)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestListTools(t *testing.T) {
	client := connectTestServer(t, textTool("search", echo), textTool("lookup", echo))

	tools, err := client.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)

	byName := map[string]string{}
	for _, tool := range tools {
		byName[tool.Name] = tool.Description
		assert.NotNil(t, tool.Handler)

		var schema map[string]any
		require.NoError(t, json.Unmarshal(tool.InputSchema, &schema))
		assert.Equal(t, "object", schema["type"])
	}
	assert.Equal(t, "Test tool search", byName["search"])
	assert.Equal(t, "Test tool lookup", byName["lookup"])
}

func TestCallTool(t *testing.T) {
	client := connectTestServer(t, textTool("echo", echo))

	text, err := client.CallTool(context.Background(), "echo", json.RawMessage(`{"msg":"hello"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"msg":"hello"}`, text)
}

func TestCallTool_EmptyArguments(t *testing.T) {
	client := connectTestServer(t, textTool("echo", echo))

	text, err := client.CallTool(context.Background(), "echo", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, text)
}

func TestCallTool_ErrorResult(t *testing.T) {
	client := connectTestServer(t, textTool("fail", func(json.RawMessage) (string, error) {
		return "", errors.New("something went wrong")
	}))

	text, err := client.CallTool(context.Background(), "fail", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Equal(t, "something went wrong", err.Error())
	assert.Empty(t, text)
}

func TestCallTool_UnknownTool(t *testing.T) {
	client := connectTestServer(t, textTool("echo", echo))

	_, err := client.CallTool(context.Background(), "missing", json.RawMessage(`{}`))
	require.Error(t, err)
}

func TestToolBox_RoutesThroughRegistry(t *testing.T) {
	client := connectTestServer(t,
		textTool("greet", func(json.RawMessage) (string, error) { return "hello world", nil }),
		textTool("fail", func(json.RawMessage) (string, error) { return "", errors.New("nope") }),
	)

	tb, err := client.ToolBox(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"greet", "fail"}, tb.Names())

	res := tb.Call(context.Background(), content.ToolCall{ID: "1", Name: "greet", Arguments: `{}`})
	assert.Equal(t, "hello world", res.Content)

	res = tb.Call(context.Background(), content.ToolCall{ID: "2", Name: "fail", Arguments: `{}`})
	assert.Equal(t, "Error executing fail: nope", res.Content)
}

func TestClose(t *testing.T) {
	client := connectTestServer(t, textTool("noop", echo))

	assert.NoError(t, client.Close())
}

func TestResultText(t *testing.T) {
	tests := []struct {
		name   string
		result *mcp.CallToolResult
		want   string
	}{
		{
			name:   "single text",
			result: &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "hello"}}},
			want:   "hello",
		},
		{
			name: "multiple text",
			result: &mcp.CallToolResult{Content: []mcp.Content{
				&mcp.TextContent{Text: "a"},
				&mcp.TextContent{Text: "b"},
			}},
			want: "a\nb",
		},
		{
			name: "image",
			result: &mcp.CallToolResult{Content: []mcp.Content{
				&mcp.TextContent{Text: "see"},
				&mcp.ImageContent{MIMEType: "image/png", Data: []byte{1}},
			}},
			want: "see\n[image: image/png]",
		},
		{
			name: "embedded resource",
			result: &mcp.CallToolResult{Content: []mcp.Content{
				&mcp.EmbeddedResource{Resource: &mcp.ResourceContents{URI: "file:///a.txt", Text: "body"}},
			}},
			want: "body",
		},
		{
			name:   "structured only",
			result: &mcp.CallToolResult{StructuredContent: map[string]any{"n": 1}},
			want:   `{"n":1}`,
		},
		{
			name:   "empty",
			result: &mcp.CallToolResult{},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resultText(tt.result))
		})
	}
}
