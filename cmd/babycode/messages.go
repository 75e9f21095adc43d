package main

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/germanamz/babycode/pkg/engine"
)

// messageAddedMsg delivers a turn appended to the transcript.
type messageAddedMsg struct {
	msg engine.MessageData
}

// textDeltaMsg carries a streamed fragment of the model's reply.
type textDeltaMsg struct {
	text string
}

// toolStartMsg signals that a tool call is being executed.
type toolStartMsg struct {
	call engine.ToolCallData
}

// toolEndMsg carries the result of a finished tool call.
type toolEndMsg struct {
	call engine.ToolCallData
}

// fileChangeMsg carries the diff of a file written by a tool.
type fileChangeMsg struct {
	change engine.FileChangeData
}

// inspectMsg delivers the context about to be sent to the model in demo mode.
type inspectMsg struct {
	data engine.InspectData
}

// inputSubmitMsg carries the text the user submitted from the input box.
type inputSubmitMsg struct {
	text string
}

// sendCompleteMsg is returned by the tea.Cmd that calls sess.Send.
type sendCompleteMsg struct {
	err      error
	duration time.Duration
}

// programReadyMsg passes the *tea.Program to the model so it can start the
// bridge goroutine.
type programReadyMsg struct {
	program *tea.Program
}
