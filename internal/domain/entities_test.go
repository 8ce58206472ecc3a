package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountWords(t *testing.T) {
	assert.Equal(t, int64(0), CountWords(""))
	assert.Equal(t, int64(0), CountWords("   "))
	assert.Equal(t, int64(2), CountWords(" world "))
	assert.Equal(t, int64(3), CountWords("one two\tthree\n"))
}

func TestUserUniqueAlias(t *testing.T) {
	u := &User{ID: 7, Username: "ada"}
	assert.Equal(t, "ada#7", u.UniqueAlias())
}

func TestWorkerStaleness(t *testing.T) {
	now := time.Now()
	staleWindow := DefaultStaleSeconds * time.Second
	w := &Worker{LastCheckIn: now.Add(-staleWindow).Add(-time.Second)}
	assert.True(t, w.IsStale(now, staleWindow))

	w2 := &Worker{LastCheckIn: now}
	assert.False(t, w2.IsStale(now, staleWindow))
}

func TestWorkerPerformanceWindow(t *testing.T) {
	w := &Worker{}
	assert.Equal(t, float64(0), w.Performance())
	for i := 0; i < PerformanceWindow+5; i++ {
		w.RecordCompletion(10, time.Second)
	}
	assert.Equal(t, int64((PerformanceWindow+5)*10), w.Contributions)
	assert.InDelta(t, 10.0, w.Performance(), 0.001)
}

func TestWaitingPromptZeroUnits(t *testing.T) {
	wp := &WaitingPrompt{NTotal: 0, NRemaining: 0}
	assert.True(t, wp.IsComplete())
	assert.Empty(t, wp.Generations())
}

func TestWaitingPromptCompletionLifecycle(t *testing.T) {
	wp := &WaitingPrompt{NTotal: 2, NRemaining: 0}
	pg1 := &ProcessingGeneration{ID: "a"}
	pg2 := &ProcessingGeneration{ID: "b"}
	wp.ProcessingGens = []*ProcessingGeneration{pg1, pg2}

	assert.False(t, wp.IsComplete())
	assert.Equal(t, 2, wp.CountProcessing())

	require.NoError(t, pg1.SetGeneration("hello", 1))
	assert.False(t, wp.IsComplete())
	assert.Equal(t, 1, wp.CountFinished())

	require.NoError(t, pg2.SetGeneration("world", 1))
	assert.True(t, wp.IsComplete())
	assert.Equal(t, []string{"hello", "world"}, wp.Generations())
}

func TestProcessingGenerationDuplicateSubmit(t *testing.T) {
	pg := &ProcessingGeneration{}
	require.NoError(t, pg.SetGeneration("hi", 1))
	err := pg.SetGeneration("hi again", 1)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, "hi", pg.Generation)
}

func TestCreditUsageOnce(t *testing.T) {
	wp := &WaitingPrompt{}
	assert.True(t, wp.CreditUsageOnce())
	assert.False(t, wp.CreditUsageOnce())
}
