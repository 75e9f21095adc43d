package usage_test

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/germanamz/babycode/pkg/modeladapter/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCount(t *testing.T) {
	a := usage.TokenCount{InputTokens: 100, OutputTokens: 50}
	b := usage.TokenCount{InputTokens: 7, OutputTokens: 3}

	assert.Equal(t, 150, a.Total())
	assert.Zero(t, usage.TokenCount{}.Total())
	assert.Equal(t, usage.TokenCount{InputTokens: 107, OutputTokens: 53}, a.Add(b))
	assert.Equal(t, "in=100 out=50", a.String())

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"input_tokens":7,"output_tokens":3}`, string(data))
}

func TestTracker_ZeroValue(t *testing.T) {
	var tr usage.Tracker

	_, ok := tr.Last()
	assert.False(t, ok)
	assert.Zero(t, tr.Calls())
	assert.Equal(t, usage.TokenCount{}, tr.Total())
}

func TestTracker_ReActRound(t *testing.T) {
	// A tool round: the first call asks for a tool, the second answers with
	// the tool output in context.
	var tr usage.Tracker
	tr.Add(usage.TokenCount{InputTokens: 900, OutputTokens: 40})
	tr.Add(usage.TokenCount{InputTokens: 1200, OutputTokens: 250})

	last, ok := tr.Last()
	require.True(t, ok)
	assert.Equal(t, usage.TokenCount{InputTokens: 1200, OutputTokens: 250}, last)
	assert.Equal(t, 2, tr.Calls())
	assert.Equal(t, 2390, tr.Total().Total())
}

func TestTracker_ConcurrentAdd(t *testing.T) {
	var tr usage.Tracker
	var wg sync.WaitGroup

	for range 50 {
		wg.Go(func() {
			tr.Add(usage.TokenCount{InputTokens: 2, OutputTokens: 1})
		})
	}
	wg.Wait()

	assert.Equal(t, 50, tr.Calls())
	assert.Equal(t, usage.TokenCount{InputTokens: 100, OutputTokens: 50}, tr.Total())
}
