package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/hordebroker/broker/internal/adapter/observability"
	"github.com/hordebroker/broker/internal/domain"
	"github.com/hordebroker/broker/internal/eligibility"
)

// PollRequest is the input to PollWork (§4.4 poll_work, §6 POST
// /generate/pop).
type PollRequest struct {
	User              *domain.User
	WorkerName        string
	Model             string
	MaxLength         int
	MaxContentLength  int
	Softprompts       []string
	PriorityUsernames []string
}

// PollResult is the output of PollWork: either Unit is set, or Skipped
// reports why nothing was dispatched (§4.4 step 6).
type PollResult struct {
	Unit    *DispatchedUnit
	Skipped map[eligibility.Reason]int
}

// PollWork resolves or creates the polling worker, advances its
// liveness, then walks the fairness order looking for the first unit
// it can take (§4.4 poll_work).
func (b *Broker) PollWork(ctx context.Context, req PollRequest) (PollResult, error) {
	tr := otel.Tracer("scheduler")
	ctx, span := tr.Start(ctx, "Broker.PollWork")
	defer span.End()
	_ = ctx

	b.mu.Lock()
	defer b.mu.Unlock()

	worker := b.registry.FindWorkerByName(req.User.ID, req.WorkerName)
	if worker == nil {
		if existing := b.registry.FindWorkerByNameAnyOwner(req.WorkerName); existing != nil {
			return PollResult{}, fmt.Errorf("op=broker.poll_work: %w: worker name owned by another user", domain.ErrConflict)
		}
		worker = b.registry.CreateWorker(req.User.ID, req.WorkerName)
	}
	now := b.now()
	worker.CheckIn(now, req.Model, req.MaxLength, req.MaxContentLength, req.Softprompts, b.limits.StaleWindow)

	skipped := make(map[eligibility.Reason]int)
	for _, wp := range b.fairnessOrder(req.User.ID, req.PriorityUsernames) {
		if !wp.Activated || wp.IsComplete() || wp.NRemaining == 0 {
			continue
		}
		ok, reason, softprompt := eligibility.CanGenerate(worker, wp, now, b.limits.StaleWindow)
		if !ok {
			skipped[reason]++
			observability.RecordSkip(string(reason))
			continue
		}

		pg := &domain.ProcessingGeneration{
			ID:                 uuid.NewString(),
			PromptID:           wp.ID,
			WorkerID:           worker.ID,
			SoftpromptAssigned: softprompt,
			StartTime:          now,
		}
		if len(wp.ProcessingGens) == 0 {
			observability.DispatchLatency.Observe(now.Sub(wp.CreatedAt).Seconds())
		}
		wp.ProcessingGens = append(wp.ProcessingGens, pg)
		wp.NRemaining--
		wp.LastActivity = now
		b.generations.Insert(pg)

		payload := map[string]any{}
		for k, v := range wp.Params.Extra {
			payload[k] = v
		}
		payload["max_length"] = wp.Params.MaxLength
		payload["max_content_length"] = wp.Params.MaxContentLength

		slog.Info("unit dispatched", slog.String("prompt_id", wp.ID), slog.String("procgen_id", pg.ID), slog.String("worker_id", worker.ID))
		return PollResult{Unit: &DispatchedUnit{
			ProcGenID:  pg.ID,
			Prompt:     wp.Prompt,
			Payload:    payload,
			Softprompt: softprompt,
		}}, nil
	}
	return PollResult{Skipped: skipped}, nil
}

// SubmitResult attaches generated text to a ProcessingGeneration,
// credits kudos and usage, and marks the owning prompt complete once
// every child has landed (§4.4 submit_result).
func (b *Broker) SubmitResult(ctx context.Context, apiKey, procGenID, text string) (reward int64, err error) {
	tr := otel.Tracer("scheduler")
	ctx, span := tr.Start(ctx, "Broker.SubmitResult")
	defer span.End()

	user := b.registry.FindUserByAPIKey(apiKey)
	if user == nil {
		return 0, fmt.Errorf("op=broker.submit_result: %w: invalid api key", domain.ErrConflict)
	}

	b.mu.Lock()
	pg := b.generations.Get(procGenID)
	if pg == nil {
		b.mu.Unlock()
		return 0, fmt.Errorf("op=broker.submit_result: %w", domain.ErrNotFound)
	}
	worker := b.registry.FindWorkerByID(pg.WorkerID)
	if worker == nil || worker.UserID != user.ID {
		b.mu.Unlock()
		return 0, fmt.Errorf("op=broker.submit_result: %w: worker not owned by caller", domain.ErrConflict)
	}
	if pg.IsCompleted() {
		b.mu.Unlock()
		return 0, fmt.Errorf("op=broker.submit_result: %w", domain.ErrDuplicate)
	}

	now := b.now()
	tokens := domain.CountWords(text)
	if err := pg.SetGeneration(text, tokens); err != nil {
		b.mu.Unlock()
		return 0, fmt.Errorf("op=broker.submit_result: %w", domain.ErrDuplicate)
	}

	worker.RecordCompletion(tokens, now.Sub(pg.StartTime))
	ownerUser := b.registry.FindUserByID(worker.UserID)
	if ownerUser != nil {
		ownerUser.Contributions.Tokens += tokens
		ownerUser.Contributions.Fulfillments++
	}

	wp := b.prompts.Get(pg.PromptID)
	if wp != nil {
		wp.LastActivity = now
		promptUser := b.registry.FindUserByID(wp.UserID)
		if promptUser != nil {
			promptUser.Usage.Tokens += tokens
			if wp.IsComplete() && wp.CreditUsageOnce() {
				promptUser.Usage.Requests++
			}
		}
		b.notifyLocked(wp.ID)
	}
	user.Kudos += tokens
	reward = tokens
	promptID := pg.PromptID
	workerID := pg.WorkerID
	b.mu.Unlock()

	slog.Info("result submitted", slog.String("procgen_id", procGenID), slog.Int64("tokens", tokens), slog.Int64("reward", reward))
	observability.RecordGenerationCompleted()
	b.events.PublishGenerationCompleted(ctx, domain.GenerationCompletedEvent{
		PromptID:  promptID,
		ProcGenID: procGenID,
		WorkerID:  workerID,
		UserID:    user.ID,
		Tokens:    tokens,
		Reward:    reward,
	})
	return reward, nil
}
