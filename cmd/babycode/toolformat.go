package main

import (
	"encoding/json"
	"fmt"
)

// toolFormatter produces a human-readable label from parsed tool arguments.
type toolFormatter func(str func(string) string) string

// toolFormatters maps the built-in file tools to their labels.
var toolFormatters = map[string]toolFormatter{
	"read_file":  func(s func(string) string) string { return fmt.Sprintf("Reading file %q", s("path")) },
	"write_file": func(s func(string) string) string { return fmt.Sprintf("Writing file %q", s("path")) },
	"list_files": func(s func(string) string) string {
		if p := s("path"); p != "" {
			return fmt.Sprintf("Listing directory %q", p)
		}
		return "Listing directory"
	},
}

func formatToolCall(toolName, argsJSON string) string {
	var args map[string]any
	if argsJSON != "" {
		_ = json.Unmarshal([]byte(argsJSON), &args)
	}

	str := func(key string) string {
		if v, ok := args[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}

	if fn, ok := toolFormatters[toolName]; ok {
		return fn(str)
	}

	// MCP tools: show name + truncated args.
	if argsJSON != "" && argsJSON != "{}" {
		return fmt.Sprintf("Calling %s %s", toolName, truncate(argsJSON, 80))
	}
	return fmt.Sprintf("Calling %s", toolName)
}
