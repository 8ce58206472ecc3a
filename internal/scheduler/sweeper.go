package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/hordebroker/broker/internal/adapter/observability"
)

// RunSweepLoop evicts stale and long-finished prompts every interval
// until ctx is cancelled (§4.2: "a periodic sweep removes stale
// prompts and completed prompts past a short retention window").
func (b *Broker) RunSweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sweep()
			b.reportGauges()
		}
	}
}

// reportGauges refreshes the queue-depth and active-worker gauges.
// Cheap enough to piggyback on the sweep tick rather than run its own
// ticker.
func (b *Broker) reportGauges() {
	now := b.now()
	b.mu.Lock()
	waiting := 0
	for _, wp := range b.prompts.All() {
		if !wp.IsComplete() && !wp.IsStale(now, b.limits.PromptStaleWindow) {
			waiting++
		}
	}
	b.mu.Unlock()
	observability.QueueDepth.Set(float64(waiting))
	observability.ActiveWorkers.Set(float64(b.registry.CountActiveWorkers(now)))
}

// sweep removes every stale or finished-and-retired WaitingPrompt, in
// one pass under the broker lock, and wakes any sync waiter still
// parked on a prompt it just evicted so the caller unblocks with
// ErrExpired instead of hanging until its own deadline (§4.4 step 6).
//
// Eviction only touches the Prompt Index. ProcessingGenerations stay in
// the Generation Index even after their owning prompt is gone: a
// worker that was handed a unit off a now-expired prompt must still be
// able to submit it and be credited (§5 cancellation/timeouts: "any
// already-dispatched units are still accepted for their workers'
// credit"; §8 scenario 5). SubmitResult tolerates a missing prompt —
// it simply skips the usage-credit update for an owner that's gone.
func (b *Broker) sweep() {
	b.mu.Lock()
	now := b.now()
	var evicted []string
	for _, wp := range b.prompts.All() {
		finished := wp.IsComplete() && now.Sub(wp.LastActivity) > b.limits.FinishedRetention
		if !wp.IsStale(now, b.limits.PromptStaleWindow) && !finished {
			continue
		}
		b.prompts.Remove(wp.ID)
		evicted = append(evicted, wp.ID)
	}
	for _, id := range evicted {
		b.notifyLocked(id)
		delete(b.waiters, id)
	}
	b.mu.Unlock()

	if len(evicted) > 0 {
		slog.Info("swept prompts", slog.Int("count", len(evicted)))
	}
}
