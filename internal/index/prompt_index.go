// Package index implements the insertion-ordered WaitingPrompt and
// ProcessingGeneration collections (spec §4.2). Both are plain maps
// plus an order slice; callers are expected to hold the broker lock
// (internal/scheduler) around any mutation that must be atomic with
// domain invariants — these types add no locking of their own.
package index

import "github.com/hordebroker/broker/internal/domain"

// PromptIndex holds live WaitingPrompts, keyed by id, iterable in
// insertion order for fairness tie-breaks (§4.2, §4.4 step 3).
type PromptIndex struct {
	byID  map[string]*domain.WaitingPrompt
	order []string
}

// NewPromptIndex constructs an empty PromptIndex.
func NewPromptIndex() *PromptIndex {
	return &PromptIndex{byID: make(map[string]*domain.WaitingPrompt)}
}

// Insert adds wp to the index. wp.ID must be unique; Insert panics on
// a duplicate id, which would indicate an id-generation bug upstream.
func (idx *PromptIndex) Insert(wp *domain.WaitingPrompt) {
	if _, exists := idx.byID[wp.ID]; exists {
		panic("index: duplicate waiting prompt id " + wp.ID)
	}
	idx.byID[wp.ID] = wp
	idx.order = append(idx.order, wp.ID)
}

// Get returns the prompt for id, or nil if absent.
func (idx *PromptIndex) Get(id string) *domain.WaitingPrompt {
	return idx.byID[id]
}

// Remove deletes the prompt for id, if present.
func (idx *PromptIndex) Remove(id string) {
	if _, ok := idx.byID[id]; !ok {
		return
	}
	delete(idx.byID, id)
	for i, existing := range idx.order {
		if existing == id {
			idx.order = append(idx.order[:i], idx.order[i+1:]...)
			break
		}
	}
}

// All returns every prompt in insertion order. The returned slice is
// a fresh copy safe to range over after releasing the broker lock.
func (idx *PromptIndex) All() []*domain.WaitingPrompt {
	out := make([]*domain.WaitingPrompt, 0, len(idx.order))
	for _, id := range idx.order {
		out = append(out, idx.byID[id])
	}
	return out
}

// CountWaiting counts prompts owned by userID that are neither stale
// nor complete, as of now (§4.2 count_waiting_requests).
func (idx *PromptIndex) CountWaiting(userID int, nowStaleFn func(*domain.WaitingPrompt) bool) int {
	n := 0
	for _, id := range idx.order {
		wp := idx.byID[id]
		if wp.UserID != userID {
			continue
		}
		if wp.IsComplete() || nowStaleFn(wp) {
			continue
		}
		n++
	}
	return n
}

// Len returns the number of prompts currently indexed.
func (idx *PromptIndex) Len() int { return len(idx.order) }
