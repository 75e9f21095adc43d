package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/germanamz/babycode/pkg/engine"
)

// renderInspection formats the context of a paused model call: the system
// prompt, the tool schemas and the conversation so far.
func renderInspection(d engine.InspectData, width int) string {
	var sb strings.Builder

	sb.WriteString(demoRuleStyle.Render(rule("DEMO MODE: Context being sent to the model", width)))
	sb.WriteString("\n\n")

	sb.WriteString(demoHeadingStyle.Render("SYSTEM PROMPT:"))
	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render(d.System))
	sb.WriteString("\n\n")

	sb.WriteString(demoHeadingStyle.Render("AVAILABLE TOOLS:"))
	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render(prettyJSON(d.Tools)))
	sb.WriteString("\n\n")

	sb.WriteString(demoHeadingStyle.Render("CONVERSATION HISTORY:"))
	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render(prettyJSON(d.Messages)))
	sb.WriteString("\n\n")

	sb.WriteString(dimStyle.Render(fmt.Sprintf("Estimated input: ~%d tokens", d.EstimatedTokens)))
	sb.WriteString("\n")
	sb.WriteString(demoRuleStyle.Render(rule("", width)))

	return sb.String()
}

func prettyJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(data)
}
