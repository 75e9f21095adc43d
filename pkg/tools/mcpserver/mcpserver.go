// Package mcpserver exposes a toolbox over the Model Context Protocol so other
// agents can use babycode's tools.
package mcpserver

import (
	"context"
	"io"
	"strings"

	"github.com/germanamz/babycode/pkg/chats/content"
	"github.com/germanamz/babycode/pkg/tools/toolbox"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server serves the tools of one registry.
type Server struct {
	server *mcp.Server
	tools  *toolbox.ToolBox
}

// New creates a Server offering every tool in tools. Calls go through
// ToolBox.Call, so arguments are validated and failures come back as result
// text like they do inside the agent loop.
func New(name, version string, tools *toolbox.ToolBox) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		tools:  tools,
	}

	for _, schema := range tools.Schemas() {
		s.server.AddTool(&mcp.Tool{
			Name:        schema.Name,
			Description: schema.Description,
			InputSchema: schema.InputSchema,
		}, s.handler(schema.Name))
	}

	return s
}

// ServeStdio serves requests on the process's stdin and stdout until ctx is
// cancelled or the client disconnects.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.run(ctx, &mcp.StdioTransport{})
}

// Serve reads requests from in and writes responses to out.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return s.run(ctx, &mcp.IOTransport{
		Reader: io.NopCloser(in),
		Writer: nopWriteCloser{out},
	})
}

func (s *Server) run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

func (s *Server) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := "{}"
		if len(req.Params.Arguments) > 0 {
			args = string(req.Params.Arguments)
		}

		result := s.tools.Call(ctx, content.ToolCall{Name: name, Arguments: args})

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: result.Content}},
			IsError: isErrorText(result.Content),
		}, nil
	}
}

// isErrorText reports whether a tool result is one of the "Error..." messages
// the tools and the registry produce.
func isErrorText(s string) bool {
	return strings.HasPrefix(s, "Error")
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
