// Package tools groups the tool registry and its Model Context Protocol
// bridges.
//
//   - [github.com/germanamz/babycode/pkg/tools/toolbox]: the Tool type and the
//     ToolBox registry that dispatches calls and contains their failures.
//   - [github.com/germanamz/babycode/pkg/tools/mcpclient]: imports the tools of
//     an external MCP server into a ToolBox.
//   - [github.com/germanamz/babycode/pkg/tools/mcpserver]: serves a ToolBox
//     over MCP.
//
// Both bridges depend on toolbox but not on each other. They wrap the official
// MCP Go SDK (github.com/modelcontextprotocol/go-sdk).
package tools
