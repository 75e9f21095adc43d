// Package usage tracks the tokens consumed by model calls.
package usage

import (
	"fmt"
	"sync"
)

// TokenCount is the token usage of one model call, or a sum of several.
type TokenCount struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total is input plus output tokens.
func (tc TokenCount) Total() int {
	return tc.InputTokens + tc.OutputTokens
}

// Add returns the field-wise sum of tc and other.
func (tc TokenCount) Add(other TokenCount) TokenCount {
	tc.InputTokens += other.InputTokens
	tc.OutputTokens += other.OutputTokens
	return tc
}

func (tc TokenCount) String() string {
	return fmt.Sprintf("in=%d out=%d", tc.InputTokens, tc.OutputTokens)
}

// Tracker keeps a running sum of the calls made through one provider. The
// zero value is ready to use and it is safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	calls int
	last  TokenCount
	sum   TokenCount
}

// Add records the usage of one call.
func (t *Tracker) Add(tc TokenCount) {
	t.mu.Lock()
	t.calls++
	t.last = tc
	t.sum = t.sum.Add(tc)
	t.mu.Unlock()
}

// Last returns the usage of the latest call; ok is false before any call.
func (t *Tracker) Last() (tc TokenCount, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.last, t.calls > 0
}

// Total returns the usage summed over every recorded call.
func (t *Tracker) Total() TokenCount {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.sum
}

// Calls returns how many calls have been recorded.
func (t *Tracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.calls
}
