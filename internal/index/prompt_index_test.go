package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hordebroker/broker/internal/domain"
)

func TestPromptIndexInsertGetRemove(t *testing.T) {
	idx := NewPromptIndex()
	wp := &domain.WaitingPrompt{ID: "p1", UserID: 1}
	idx.Insert(wp)

	require.Equal(t, wp, idx.Get("p1"))
	assert.Equal(t, 1, idx.Len())

	idx.Remove("p1")
	assert.Nil(t, idx.Get("p1"))
	assert.Equal(t, 0, idx.Len())
	idx.Remove("p1") // no-op on missing id
}

func TestPromptIndexAllPreservesInsertionOrder(t *testing.T) {
	idx := NewPromptIndex()
	idx.Insert(&domain.WaitingPrompt{ID: "a"})
	idx.Insert(&domain.WaitingPrompt{ID: "b"})
	idx.Insert(&domain.WaitingPrompt{ID: "c"})

	ids := make([]string, 0, 3)
	for _, wp := range idx.All() {
		ids = append(ids, wp.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestPromptIndexInsertDuplicatePanics(t *testing.T) {
	idx := NewPromptIndex()
	idx.Insert(&domain.WaitingPrompt{ID: "dup"})
	assert.Panics(t, func() { idx.Insert(&domain.WaitingPrompt{ID: "dup"}) })
}

func TestPromptIndexCountWaiting(t *testing.T) {
	idx := NewPromptIndex()
	now := time.Now()
	idx.Insert(&domain.WaitingPrompt{ID: "a", UserID: 1, NTotal: 1, NRemaining: 1, LastActivity: now})
	idx.Insert(&domain.WaitingPrompt{ID: "b", UserID: 1, NTotal: 1, NRemaining: 0, LastActivity: now})
	idx.Insert(&domain.WaitingPrompt{ID: "c", UserID: 2, NTotal: 1, NRemaining: 1, LastActivity: now})

	count := idx.CountWaiting(1, func(wp *domain.WaitingPrompt) bool { return false })
	assert.Equal(t, 1, count) // "b" is complete, "a" counts, "c" belongs to another user
}

func TestGenerationIndex(t *testing.T) {
	idx := NewGenerationIndex()
	pg := &domain.ProcessingGeneration{ID: "g1"}
	idx.Insert(pg)
	assert.Equal(t, pg, idx.Get("g1"))
	assert.Equal(t, 1, idx.Len())
	idx.Remove("g1")
	assert.Nil(t, idx.Get("g1"))
}
