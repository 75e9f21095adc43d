// Package modeladapter defines how the agent talks to a language model.
//
// It contains:
//   - [Completer] interface: a producer of streaming [Event] values
//   - [Accumulator] and [Collect]: the structural consumer that turns an event
//     sequence into an assistant message
//   - embeddable [ModelAdapter] base struct with HTTP helpers, auth, custom
//     headers, server-sent event streaming and usage tracking
//   - [RetryCompleter]: 429 retry with exponential backoff and jitter
//   - [github.com/germanamz/babycode/pkg/modeladapter/usage]: thread-safe token usage tracker
//
// This package contains no provider-specific code. Concrete adapters live in
// separate packages that import modeladapter.
package modeladapter
