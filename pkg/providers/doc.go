// Package providers groups the concrete model adapters. Each sub-package
// implements [github.com/germanamz/babycode/pkg/modeladapter.Completer] for
// one API:
//   - [github.com/germanamz/babycode/pkg/providers/anthropic]: Anthropic Messages API, streaming over server-sent events
//   - [github.com/germanamz/babycode/pkg/providers/openai]: OpenAI Chat Completions through the official SDK
//   - [github.com/germanamz/babycode/pkg/providers/gemini]: Google Gemini generateContent, not streamed
//   - [github.com/germanamz/babycode/pkg/providers/grok]: xAI Grok over its OpenAI-compatible endpoint, not streamed
package providers
