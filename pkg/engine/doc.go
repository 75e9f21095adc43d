// Package engine is the composition root that assembles the babycode
// components from configuration and exposes them through a frontend-agnostic
// API. Frontends (the terminal shell, the event feed) interact with Engine and
// Session types, observe activity through an EventBus, and never import the
// agent or provider packages directly.
//
// An Engine holds one provider completer and one tool registry (the file tools
// plus the tools of every configured MCP server). Each Session owns its own
// agent and transcript. In demo mode every model call is preceded by an
// inspect event and the run waits for Session.Resume.
package engine
