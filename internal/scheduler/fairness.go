package scheduler

import "github.com/hordebroker/broker/internal/domain"

// fairnessOrder builds the walk order poll_work evaluates (§4.4 step
// 3): the polling user's own prompts first, then prompts owned by each
// resolved priority user in the order given, then everything else in
// insertion order. Each prompt appears at most once. Caller must hold
// b.mu.
func (b *Broker) fairnessOrder(pollingUserID int, priorityUsernames []string) []*domain.WaitingPrompt {
	all := b.prompts.All()
	seen := make(map[string]bool, len(all))
	ordered := make([]*domain.WaitingPrompt, 0, len(all))

	appendOwned := func(userID int) {
		for _, wp := range all {
			if wp.UserID == userID && !seen[wp.ID] {
				seen[wp.ID] = true
				ordered = append(ordered, wp)
			}
		}
	}

	appendOwned(pollingUserID)
	for _, username := range priorityUsernames {
		u := b.registry.FindUserByUsername(username)
		if u == nil {
			continue // unknown priority username is silently skipped (SPEC_FULL.md §4)
		}
		appendOwned(u.ID)
	}
	for _, wp := range all {
		if !seen[wp.ID] {
			seen[wp.ID] = true
			ordered = append(ordered, wp)
		}
	}
	return ordered
}
