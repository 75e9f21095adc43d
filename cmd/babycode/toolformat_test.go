package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatToolCall(t *testing.T) {
	tests := []struct {
		name     string
		tool     string
		args     string
		expected string
	}{
		{"read", "read_file", `{"path":"main.go"}`, `Reading file "main.go"`},
		{"write", "write_file", `{"path":"out.txt","content":"x"}`, `Writing file "out.txt"`},
		{"list with path", "list_files", `{"path":"pkg"}`, `Listing directory "pkg"`},
		{"list without path", "list_files", `{}`, "Listing directory"},
		{"unknown no args", "search", "", "Calling search"},
		{"unknown empty object", "search", "{}", "Calling search"},
		{"unknown with args", "search", `{"q":"x"}`, `Calling search {"q":"x"}`},
		{"invalid json", "read_file", "not json", `Reading file ""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatToolCall(tt.tool, tt.args))
		})
	}
}

func TestFormatToolCall_TruncatesLongArgs(t *testing.T) {
	args := `{"q":"` + strings.Repeat("a", 200) + `"}`
	out := formatToolCall("search", args)
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.Less(t, len(out), 100)
}
