package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hordebroker/broker/internal/domain"
	"github.com/hordebroker/broker/internal/registry"
)

func newTestBroker(t *testing.T) (*Broker, *registry.Registry) {
	t.Helper()
	limits := domain.DefaultLimits()
	reg := registry.New(limits.StaleWindow)
	return New(reg, nil, limits), reg
}

// Scenario 1 (§8): submit -> poll -> submit result -> query status.
func TestEndToEndSubmitPollSubmitResult(t *testing.T) {
	b, reg := newTestBroker(t)
	userA, err := reg.CreateUser("A", "a@example.com", "keyA", "")
	require.NoError(t, err)
	userW, err := reg.CreateUser("W", "w@example.com", "keyW", "")
	require.NoError(t, err)

	wp, err := b.SubmitPrompt(context.Background(), SubmitRequest{
		User:   userA,
		Prompt: "hello",
		Params: domain.Params{N: 1, MaxLength: 16},
		Mode:   domain.ModeAsync,
	})
	require.NoError(t, err)

	result, err := b.PollWork(context.Background(), PollRequest{
		User:             userW,
		WorkerName:       "W1",
		Model:            "M",
		MaxLength:        32,
		MaxContentLength: 2048,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Unit)

	reward, err := b.SubmitResult(context.Background(), "keyW", result.Unit.ProcGenID, " world")
	require.NoError(t, err)
	assert.Equal(t, int64(2), reward)

	view, err := b.QueryStatus(wp.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, view.Waiting)
	assert.Equal(t, 0, view.Processing)
	assert.Equal(t, 1, view.Finished)
	assert.Equal(t, []string{" world"}, view.Generations)

	assert.Equal(t, int64(2), userA.Usage.Tokens)
	assert.Equal(t, int64(2), userW.Contributions.Tokens)
}

// Scenario 2 (§8): sync submit, no workers registered -> 503-equivalent,
// prompt absent from the index.
func TestSyncSubmitNoEligibleWorker(t *testing.T) {
	b, reg := newTestBroker(t)
	userA, err := reg.CreateUser("A", "a@example.com", "keyA", "")
	require.NoError(t, err)

	_, err = b.SubmitPrompt(context.Background(), SubmitRequest{
		User:   userA,
		Prompt: "hello",
		Params: domain.Params{N: 1},
		Mode:   domain.ModeSync,
	})
	assert.ErrorIs(t, err, domain.ErrNoEligible)
	assert.Equal(t, 0, b.prompts.Len())
}

// Scenario 3 (§8): backpressure at MaxLiveUserPrompts, relieved by completion.
func TestTooManyLivePromptsBackpressure(t *testing.T) {
	b, reg := newTestBroker(t)
	userA, err := reg.CreateUser("A", "a@example.com", "keyA", "")
	require.NoError(t, err)

	var ids []string
	for i := 0; i < domain.DefaultMaxLiveUserPrompts; i++ {
		wp, err := b.SubmitPrompt(context.Background(), SubmitRequest{
			User:   userA,
			Prompt: "hello",
			Params: domain.Params{N: 1},
			Mode:   domain.ModeAsync,
		})
		require.NoError(t, err)
		ids = append(ids, wp.ID)
	}

	_, err = b.SubmitPrompt(context.Background(), SubmitRequest{
		User:   userA,
		Prompt: "hello",
		Params: domain.Params{N: 1},
		Mode:   domain.ModeAsync,
	})
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	b.mu.Lock()
	wp := b.prompts.Get(ids[0])
	wp.NRemaining = 0
	b.mu.Unlock()

	_, err = b.SubmitPrompt(context.Background(), SubmitRequest{
		User:   userA,
		Prompt: "hello again",
		Params: domain.Params{N: 1},
		Mode:   domain.ModeAsync,
	})
	assert.NoError(t, err)
}

// Scenario 4 (§8): n=3 across two workers, each unit dispatched exactly
// once, generations land in dispatch order.
func TestNUnitsAcrossTwoWorkers(t *testing.T) {
	b, reg := newTestBroker(t)
	userA, err := reg.CreateUser("A", "a@example.com", "keyA", "")
	require.NoError(t, err)
	userW, err := reg.CreateUser("W", "w@example.com", "keyW", "")
	require.NoError(t, err)

	wp, err := b.SubmitPrompt(context.Background(), SubmitRequest{
		User:   userA,
		Prompt: "hello",
		Params: domain.Params{N: 3},
		Mode:   domain.ModeAsync,
	})
	require.NoError(t, err)

	poll := func(name string) *DispatchedUnit {
		result, err := b.PollWork(context.Background(), PollRequest{
			User:             userW,
			WorkerName:       name,
			Model:             "M",
			MaxLength:        32,
			MaxContentLength: 2048,
		})
		require.NoError(t, err)
		require.NotNil(t, result.Unit)
		return result.Unit
	}

	u1 := poll("W1")
	u2 := poll("W2")
	u3 := poll("W1")

	require.NoError(t, err)
	_, err = b.SubmitResult(context.Background(), "keyW", u1.ProcGenID, "one")
	require.NoError(t, err)
	_, err = b.SubmitResult(context.Background(), "keyW", u2.ProcGenID, "two")
	require.NoError(t, err)
	_, err = b.SubmitResult(context.Background(), "keyW", u3.ProcGenID, "three")
	require.NoError(t, err)

	view, err := b.QueryStatus(wp.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, view.Waiting)
	assert.True(t, view.Done)
	assert.Equal(t, []string{"one", "two", "three"}, view.Generations)
}

// Scenario 6 (§8): duplicate submit_result for the same id, issued one
// after the other — the first succeeds, the second is rejected as a
// duplicate with reward 0.
func TestDuplicateSubmitResultRejected(t *testing.T) {
	b, reg := newTestBroker(t)
	userA, err := reg.CreateUser("A", "a@example.com", "keyA", "")
	require.NoError(t, err)
	userW, err := reg.CreateUser("W", "w@example.com", "keyW", "")
	require.NoError(t, err)

	_, err = b.SubmitPrompt(context.Background(), SubmitRequest{
		User:   userA,
		Prompt: "hello",
		Params: domain.Params{N: 1},
		Mode:   domain.ModeAsync,
	})
	require.NoError(t, err)

	result, err := b.PollWork(context.Background(), PollRequest{
		User:             userW,
		WorkerName:       "W1",
		Model:            "M",
		MaxLength:        32,
		MaxContentLength: 2048,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Unit)

	reward1, err1 := b.SubmitResult(context.Background(), "keyW", result.Unit.ProcGenID, "first")
	reward2, err2 := b.SubmitResult(context.Background(), "keyW", result.Unit.ProcGenID, "second")

	require.NoError(t, err1)
	assert.Greater(t, reward1, int64(0))
	assert.ErrorIs(t, err2, domain.ErrDuplicate)
	assert.Equal(t, int64(0), reward2)
}

// QueryStatus reports expired once a prompt's last activity has passed
// PromptStaleSeconds but the sweeper hasn't reclaimed it yet.
func TestQueryStatusReportsExpiredBeforeSweep(t *testing.T) {
	b, reg := newTestBroker(t)
	userA, err := reg.CreateUser("A", "a@example.com", "keyA", "")
	require.NoError(t, err)

	wp, err := b.SubmitPrompt(context.Background(), SubmitRequest{
		User:   userA,
		Prompt: "hello",
		Params: domain.Params{N: 1},
		Mode:   domain.ModeAsync,
	})
	require.NoError(t, err)

	view, err := b.QueryStatus(wp.ID)
	require.NoError(t, err)
	assert.False(t, view.Expired)

	future := time.Now().Add(domain.DefaultPromptStaleSeconds*time.Second + time.Minute)
	b.now = func() time.Time { return future }

	view, err = b.QueryStatus(wp.ID)
	require.NoError(t, err)
	assert.True(t, view.Expired)
	assert.False(t, view.Done)
}

// Boundary case (§8): n=0 prompts are admitted and immediately complete.
func TestZeroUnitPromptImmediatelyComplete(t *testing.T) {
	b, reg := newTestBroker(t)
	userA, err := reg.CreateUser("A", "a@example.com", "keyA", "")
	require.NoError(t, err)

	wp, err := b.SubmitPrompt(context.Background(), SubmitRequest{
		User:   userA,
		Prompt: "hello",
		Params: domain.Params{N: 0},
		Mode:   domain.ModeSync,
	})
	require.NoError(t, err)
	assert.Empty(t, wp.Generations())

	view, err := b.QueryStatus(wp.ID)
	require.NoError(t, err)
	assert.True(t, view.Done)
}

// Expiry (§8 scenario 5): a stale worker never submitting lets the
// sweeper expire the prompt; a later duplicate submit still credits
// the worker but does not resurrect the prompt.
func TestSweepExpiresStalePromptAndLateSubmitStillCredits(t *testing.T) {
	b, reg := newTestBroker(t)
	userA, err := reg.CreateUser("A", "a@example.com", "keyA", "")
	require.NoError(t, err)
	userW, err := reg.CreateUser("W", "w@example.com", "keyW", "")
	require.NoError(t, err)

	wp, err := b.SubmitPrompt(context.Background(), SubmitRequest{
		User:   userA,
		Prompt: "hello",
		Params: domain.Params{N: 1},
		Mode:   domain.ModeAsync,
	})
	require.NoError(t, err)

	result, err := b.PollWork(context.Background(), PollRequest{
		User:             userW,
		WorkerName:       "W1",
		Model:            "M",
		MaxLength:        32,
		MaxContentLength: 2048,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Unit)

	future := time.Now().Add(domain.DefaultPromptStaleSeconds*time.Second + time.Minute)
	b.now = func() time.Time { return future }
	b.sweep()

	_, err = b.QueryStatus(wp.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	reward, err := b.SubmitResult(context.Background(), "keyW", result.Unit.ProcGenID, "late")
	require.NoError(t, err)
	assert.Greater(t, reward, int64(0))
	assert.Greater(t, userW.Contributions.Tokens, int64(0))
}
