package index

import "github.com/hordebroker/broker/internal/domain"

// GenerationIndex holds weak (lookup-only) references to
// ProcessingGenerations, keyed by id, for O(1) lookup on submit_result
// (§3 Ownership: "also indexed by id in the Generation Index for O(1)
// lookup on submit"). The owning WaitingPrompt, not this index, is the
// authoritative owner of the slice of children.
type GenerationIndex struct {
	byID map[string]*domain.ProcessingGeneration
}

// NewGenerationIndex constructs an empty GenerationIndex.
func NewGenerationIndex() *GenerationIndex {
	return &GenerationIndex{byID: make(map[string]*domain.ProcessingGeneration)}
}

// Insert registers pg for O(1) lookup by id.
func (idx *GenerationIndex) Insert(pg *domain.ProcessingGeneration) {
	idx.byID[pg.ID] = pg
}

// Get returns the ProcessingGeneration for id, or nil if absent.
func (idx *GenerationIndex) Get(id string) *domain.ProcessingGeneration {
	return idx.byID[id]
}

// Remove deletes the entry for id, if present. The sweeper does not
// call this: a ProcessingGeneration must remain resolvable by id even
// after its owning prompt is evicted, so a worker's late submit is
// still accepted and credited (§5, §8 scenario 5).
func (idx *GenerationIndex) Remove(id string) {
	delete(idx.byID, id)
}

// Len returns the number of indexed generations.
func (idx *GenerationIndex) Len() int { return len(idx.byID) }
