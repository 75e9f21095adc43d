// Package mcpclient imports the tools of an external MCP server into a
// toolbox. Each imported tool's handler forwards the call to the server over
// the session opened by New.
package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/germanamz/babycode/pkg/tools/toolbox"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client is a connected MCP session.
type Client struct {
	session *mcp.ClientSession
}

// New spawns an MCP server process speaking stdio and returns a connected
// client. The SDK performs the initialize handshake during Connect.
func New(ctx context.Context, command string, args ...string) (*Client, error) {
	transport := &mcp.CommandTransport{
		Command: exec.Command(command, args...), //nolint:gosec // command comes from the user's configuration
	}

	return connect(ctx, transport)
}

// connect opens a session over transport. Tests pass an in-memory transport.
func connect(ctx context.Context, transport mcp.Transport) (*Client, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "babycode",
		Version: "0.1.0",
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: connect: %w", err)
	}

	return &Client{session: session}, nil
}

// ListTools fetches every tool the server offers, following pagination, and
// returns them as toolbox.Tool values bound to this client.
func (c *Client) ListTools(ctx context.Context) ([]toolbox.Tool, error) {
	var tools []toolbox.Tool

	params := &mcp.ListToolsParams{}
	for {
		result, err := c.session.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("mcpclient: list tools: %w", err)
		}

		for _, t := range result.Tools {
			tool, err := c.toolFor(t)
			if err != nil {
				return nil, fmt.Errorf("mcpclient: tool %q: %w", t.Name, err)
			}
			tools = append(tools, tool)
		}

		if result.NextCursor == "" {
			return tools, nil
		}
		params = &mcp.ListToolsParams{Cursor: result.NextCursor}
	}
}

// ToolBox returns the server's tools in a new registry.
func (c *Client) ToolBox(ctx context.Context) (*toolbox.ToolBox, error) {
	tools, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	tb := toolbox.New()
	tb.Register(tools...)

	return tb, nil
}

// CallTool invokes a tool on the server. arguments must be a JSON object or
// empty. A result the server flags as an error is returned as an error
// carrying its text.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	params := &mcp.CallToolParams{Name: name, Arguments: map[string]any{}}
	if len(arguments) > 0 {
		params.Arguments = arguments
	}

	result, err := c.session.CallTool(ctx, params)
	if err != nil {
		return "", fmt.Errorf("mcpclient: call %s: %w", name, err)
	}

	text := resultText(result)
	if result.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return "", errors.New(text)
	}

	return text, nil
}

// Close ends the session. For command transports the SDK closes the child's
// stdin and terminates it if it does not exit.
func (c *Client) Close() error {
	return c.session.Close()
}

func (c *Client) toolFor(t *mcp.Tool) (toolbox.Tool, error) {
	var schema json.RawMessage
	if t.InputSchema != nil {
		b, err := json.Marshal(t.InputSchema)
		if err != nil {
			return toolbox.Tool{}, fmt.Errorf("marshal input schema: %w", err)
		}
		schema = b
	}

	name := t.Name

	return toolbox.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			return c.CallTool(ctx, name, input)
		},
	}, nil
}

// resultText flattens a call result into the single string a tool result
// carries. Non-text items are summarized; structured content is used only
// when there is no text.
func resultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, item := range result.Content {
		switch v := item.(type) {
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image: %s]", v.MIMEType))
		case *mcp.AudioContent:
			parts = append(parts, fmt.Sprintf("[audio: %s]", v.MIMEType))
		case *mcp.ResourceLink:
			parts = append(parts, fmt.Sprintf("[resource: %s]", v.URI))
		case *mcp.EmbeddedResource:
			if v.Resource != nil && v.Resource.Text != "" {
				parts = append(parts, v.Resource.Text)
			} else if v.Resource != nil {
				parts = append(parts, fmt.Sprintf("[resource: %s]", v.Resource.URI))
			}
		}
	}

	if len(parts) == 0 && result.StructuredContent != nil {
		if b, err := json.Marshal(result.StructuredContent); err == nil {
			return string(b)
		}
	}

	return strings.Join(parts, "\n")
}
