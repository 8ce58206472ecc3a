// Package scheduler implements the brokering control surface: submit,
// poll, submit-result, and status, plus fairness ordering and the
// single process-wide Broker lock (spec §4.4, §5).
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/hordebroker/broker/internal/domain"
	"github.com/hordebroker/broker/internal/eligibility"
	"github.com/hordebroker/broker/internal/index"
	"github.com/hordebroker/broker/internal/registry"
)

// Broker is the control surface called by the public API boundary. All
// brokerage state — Registry, PromptIndex, GenerationIndex — is
// protected by one mutex so that dispatch decrement and
// ProcessingGeneration creation are atomic w.r.t. every other
// brokerage operation (§5 ordering guarantees, §8 invariant 5).
type Broker struct {
	mu sync.Mutex

	registry    *registry.Registry
	prompts     *index.PromptIndex
	generations *index.GenerationIndex
	waiters     map[string]*promptWaiter

	events domain.EventPublisher
	limits domain.Limits

	now func() time.Time
}

// New constructs a Broker over reg. pub may be nil, in which case
// completion events are discarded (eventbus.Noop semantics). limits
// carries the operator-tunable windows and caps sourced from
// internal/config.Config (STALE_SECONDS, PROMPT_STALE_SECONDS,
// FINISHED_RETENTION, MAX_LIVE_USER_PROMPTS).
func New(reg *registry.Registry, pub domain.EventPublisher, limits domain.Limits) *Broker {
	if pub == nil {
		pub = noopPublisher{}
	}
	return &Broker{
		registry:    reg,
		prompts:     index.NewPromptIndex(),
		generations: index.NewGenerationIndex(),
		waiters:     make(map[string]*promptWaiter),
		events:      pub,
		limits:      limits,
		now:         time.Now,
	}
}

type noopPublisher struct{}

func (noopPublisher) PublishGenerationCompleted(_ domain.Context, _ domain.GenerationCompletedEvent) {
}

// DispatchedUnit is the payload returned to a worker by PollWork on a
// successful match (§4.4 poll_work step 5, §6 POST /generate/pop).
type DispatchedUnit struct {
	ProcGenID  string
	Prompt     string
	Payload    map[string]any
	Softprompt string
}

// StatusView is the §4.4 query_status / §6 GET /generate/prompt/{id}
// response shape.
type StatusView struct {
	Waiting    int
	Processing int
	Finished   int
	Done       bool
	Expired    bool
	Generations []string
}

// SubmitRequest is the input to SubmitPrompt (§4.4 submit_prompt).
type SubmitRequest struct {
	User        *domain.User
	Prompt      string
	Models      []string
	Servers     []string
	Softprompts []string
	Params      domain.Params
	Mode        domain.RequestMode
}

// SubmitPrompt admits a new WaitingPrompt, applying backpressure,
// sync pre-admission eligibility checks, and (for sync mode) blocking
// until completion or expiry (§4.4 submit_prompt).
func (b *Broker) SubmitPrompt(ctx context.Context, req SubmitRequest) (*domain.WaitingPrompt, error) {
	tr := otel.Tracer("scheduler")
	ctx, span := tr.Start(ctx, "Broker.SubmitPrompt")
	defer span.End()

	if req.Prompt == "" {
		return nil, fmt.Errorf("op=broker.submit_prompt: %w: prompt is empty", domain.ErrInvalidArgument)
	}
	softprompts := req.Softprompts
	if len(softprompts) == 0 {
		softprompts = []string{""}
	}

	b.mu.Lock()
	now := b.now()
	live := b.prompts.CountWaiting(req.User.ID, func(wp *domain.WaitingPrompt) bool { return wp.IsStale(now, b.limits.PromptStaleWindow) })
	if live >= b.limits.MaxLiveUserPrompts {
		b.mu.Unlock()
		return nil, fmt.Errorf("op=broker.submit_prompt: %w: user has too many live prompts", domain.ErrRateLimited)
	}

	// req.Params.N is honored as given: n=0 admits a trivially complete
	// prompt (§8 boundary case); callers that mean "one unit" must say
	// n=1 explicitly — the HTTP adapter applies that default before
	// calling SubmitPrompt.
	wp := &domain.WaitingPrompt{
		ID:           uuid.NewString(),
		UserID:       req.User.ID,
		Prompt:       req.Prompt,
		Params:       req.Params,
		Models:       req.Models,
		Servers:      req.Servers,
		Softprompts:  softprompts,
		NTotal:       req.Params.N,
		NRemaining:   req.Params.N,
		Tokens:       domain.CountWords(req.Prompt),
		LastActivity: now,
		CreatedAt:    now,
	}
	b.prompts.Insert(wp)

	if req.Mode == domain.ModeSync && wp.NTotal > 0 {
		// A zero-unit prompt is trivially complete (§8 boundary case)
		// and needs no eligible worker to be admitted.
		if !b.anyEligibleLocked(wp, now) {
			b.prompts.Remove(wp.ID)
			b.mu.Unlock()
			return nil, fmt.Errorf("op=broker.submit_prompt: %w", domain.ErrNoEligible)
		}
	}
	wp.Activated = true
	waiter := b.waiterLocked(wp.ID)
	b.mu.Unlock()

	slog.Info("prompt submitted", slog.String("prompt_id", wp.ID), slog.Int("user_id", req.User.ID), slog.Uint64("n", uint64(wp.NTotal)))

	if req.Mode == domain.ModeAsync {
		return wp, nil
	}
	return b.waitForCompletion(ctx, wp, waiter)
}

func (b *Broker) anyEligibleLocked(wp *domain.WaitingPrompt, now time.Time) bool {
	for _, w := range b.registry.AllWorkers() {
		if ok, _, _ := eligibility.CanGenerate(w, wp, now, b.limits.StaleWindow); ok {
			return true
		}
	}
	return false
}

// waitForCompletion blocks the caller until wp completes, its
// prompt-stale deadline passes, or ctx is cancelled (§4.4 step 6, §5
// suspension points: "acquires the lock only to check status, then
// releases and waits").
func (b *Broker) waitForCompletion(ctx context.Context, wp *domain.WaitingPrompt, waiter *promptWaiter) (*domain.WaitingPrompt, error) {
	deadline := time.Now().Add(b.limits.PromptStaleWindow)
	for {
		b.mu.Lock()
		done := wp.IsComplete()
		evicted := b.prompts.Get(wp.ID) == nil
		b.mu.Unlock()
		if done {
			return wp, nil
		}
		if evicted || time.Now().After(deadline) {
			b.mu.Lock()
			b.prompts.Remove(wp.ID)
			b.mu.Unlock()
			return nil, fmt.Errorf("op=broker.submit_prompt: %w", domain.ErrExpired)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-waiter.wait(1 * time.Second):
		}
	}
}

// QueryStatus returns the current status view of the prompt id, or
// ErrNotFound.
func (b *Broker) QueryStatus(id string) (StatusView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	wp := b.prompts.Get(id)
	if wp == nil {
		return StatusView{}, fmt.Errorf("op=broker.query_status: %w", domain.ErrNotFound)
	}
	done := wp.IsComplete()
	return StatusView{
		Waiting:     int(wp.NRemaining),
		Processing:  wp.CountProcessing(),
		Finished:    wp.CountFinished(),
		Done:        done,
		Expired:     !done && wp.IsStale(b.now(), b.limits.PromptStaleWindow),
		Generations: wp.Generations(),
	}, nil
}
