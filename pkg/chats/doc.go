// Package chats provides the transcript model shared by the agent loop, the
// model providers, and the shell.
//
// It is organized into sub-packages:
//   - [github.com/germanamz/babycode/pkg/chats/role]: turn roles (user, assistant, tool)
//   - [github.com/germanamz/babycode/pkg/chats/content]: typed blocks (text, tool call, tool result)
//   - [github.com/germanamz/babycode/pkg/chats/message]: turns composed of a role and content blocks
//   - [github.com/germanamz/babycode/pkg/chats/chat]: the append-only conversation state
//
// No provider or API code lives here; adapters translate these types to and
// from their wire formats.
package chats
