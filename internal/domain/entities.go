// Package domain defines the core entities, ports, and domain-specific
// errors of the brokering cluster. It has no dependency on transport,
// storage, or observability concerns.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error taxonomy (sentinels). Adapters map these to transport-specific
// codes (see internal/adapter/httpserver/responses.go).
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrRateLimited     = errors.New("rate limited")
	ErrNoEligible      = errors.New("no eligible worker")
	ErrExpired         = errors.New("prompt expired")
	ErrDuplicate       = errors.New("duplicate submission")
)

// Context is an alias for context.Context so the domain package reads
// self-contained while every adapter still passes a real context.Context.
type Context = context.Context

// DefaultStaleSeconds is the spec-default liveness window for a Worker
// (§3, §4.5), the same value as the envDefault of
// internal/config.Config.StaleSeconds. The window actually enforced at
// runtime always comes from Limits, never from this constant directly,
// so an operator's STALE_SECONDS override takes effect.
const DefaultStaleSeconds = 300

// DefaultPromptStaleSeconds is the spec-default inactivity window for a
// WaitingPrompt (§3), the same value as the envDefault of
// internal/config.Config.PromptStaleSeconds.
const DefaultPromptStaleSeconds = 600

// DefaultMaxLiveUserPrompts is the spec-default per-user backpressure
// cap on non-completed prompts (§4.4 submit_prompt step 2), the same
// value as the envDefault of internal/config.Config.MaxLiveUserPrompts.
const DefaultMaxLiveUserPrompts = 3

// DefaultFinishedRetention is the spec-default grace period a completed
// prompt stays queryable before the sweeper reclaims it (§4.2), the same
// value as the envDefault of internal/config.Config.FinishedRetention.
const DefaultFinishedRetention = 60 * time.Second

// PerformanceWindow bounds the rolling tokens/sec sample count kept per
// Worker (§3, §4 supplemented features).
const PerformanceWindow = 20

// Limits collects the broker's operator-tunable windows and caps,
// sourced from internal/config.Config at startup (SPEC_FULL.md §1
// Ambient Stack) and threaded into the Registry, Broker, and
// eligibility matcher at every call site that used to read a fixed
// constant — so e.g. STALE_SECONDS actually changes worker staleness
// at runtime instead of silently doing nothing.
type Limits struct {
	StaleWindow        time.Duration
	PromptStaleWindow  time.Duration
	FinishedRetention  time.Duration
	MaxLiveUserPrompts int
}

// DefaultLimits returns the spec's own windows and caps (§3, §4.2,
// §4.4), for callers that construct a Broker/Registry without an
// explicit Config (e.g. tests).
func DefaultLimits() Limits {
	return Limits{
		StaleWindow:        DefaultStaleSeconds * time.Second,
		PromptStaleWindow:  DefaultPromptStaleSeconds * time.Second,
		FinishedRetention:  DefaultFinishedRetention,
		MaxLiveUserPrompts: DefaultMaxLiveUserPrompts,
	}
}

// RequestMode distinguishes synchronous (blocking) from asynchronous
// prompt submission (§4.4).
type RequestMode int

// Request modes.
const (
	ModeAsync RequestMode = iota
	ModeSync
)

// User is a registered cluster participant: a prompt submitter, a
// worker owner, or both.
type User struct {
	ID      int
	Username string
	Email    string
	APIKey   string
	Inviter  string

	Usage         Usage
	Contributions Contributions
	Kudos         int64

	CreatedAt time.Time
}

// UniqueAlias is the only safe public identity for a user (§3): always
// display this, never Username alone, since Username is not unique.
func (u *User) UniqueAlias() string {
	return fmt.Sprintf("%s#%d", u.Username, u.ID)
}

// Usage tracks what a user has requested of the cluster.
type Usage struct {
	Requests int64
	Tokens   int64
}

// Contributions tracks what a user's workers have produced.
type Contributions struct {
	Fulfillments int64
	Tokens       int64
}

// Worker is a volunteer node polling for generation units.
type Worker struct {
	ID     string
	Name   string
	UserID int

	Model             string
	MaxLength         int
	MaxContentLength  int
	Softprompts       []string

	LastCheckIn time.Time
	CreatedAt   time.Time

	Contributions int64 // tokens produced, lifetime
	Fulfilments   int64 // units completed, lifetime
	UptimeSeconds int64

	perf performanceRing
}

// performanceRing is a fixed-size ring buffer of tokens/sec samples,
// averaged on read (§4 supplemented features, K≈20).
type performanceRing struct {
	samples [PerformanceWindow]float64
	count   int
	next    int
}

func (r *performanceRing) add(tokensPerSecond float64) {
	r.samples[r.next] = tokensPerSecond
	r.next = (r.next + 1) % PerformanceWindow
	if r.count < PerformanceWindow {
		r.count++
	}
}

func (r *performanceRing) average() float64 {
	if r.count == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < r.count; i++ {
		sum += r.samples[i]
	}
	return sum / float64(r.count)
}

// IsStale reports whether the worker has missed check-ins beyond
// staleWindow, relative to now (§3, §4.5). staleWindow is the
// operator-tunable STALE_SECONDS value (Limits.StaleWindow), not a
// fixed constant.
func (w *Worker) IsStale(now time.Time, staleWindow time.Duration) bool {
	return now.Sub(w.LastCheckIn) > staleWindow
}

// CheckIn updates the worker's capability snapshot and liveness, and
// advances its uptime counter (§4.4 poll_work step 2).
func (w *Worker) CheckIn(now time.Time, model string, maxLength, maxContentLength int, softprompts []string, staleWindow time.Duration) {
	if !w.LastCheckIn.IsZero() && !w.IsStale(now, staleWindow) {
		w.UptimeSeconds += int64(now.Sub(w.LastCheckIn).Seconds())
	}
	w.Model = model
	w.MaxLength = maxLength
	w.MaxContentLength = maxContentLength
	w.Softprompts = softprompts
	w.LastCheckIn = now
}

// RecordCompletion credits a completed unit to the worker's lifetime
// stats and rolling performance window (§4.4 submit_result step 6).
func (w *Worker) RecordCompletion(tokens int64, elapsed time.Duration) {
	w.Contributions += tokens
	w.Fulfilments++
	if elapsed > 0 {
		w.perf.add(float64(tokens) / elapsed.Seconds())
	}
}

// Performance returns the rolling average tokens/sec over the last
// PerformanceWindow completions.
func (w *Worker) Performance() float64 { return w.perf.average() }

// Params is the free-form map of generation knobs a submitter
// supplies. N, MaxLength, and MaxContentLength are typechecked at
// admission; Extra is passed through verbatim to the worker payload
// (§9 design notes).
type Params struct {
	N                uint
	MaxLength        uint
	MaxContentLength uint
	Extra            map[string]any
}

// WaitingPrompt is one end-user text-generation request, split into N
// independently dispatched sub-units.
type WaitingPrompt struct {
	ID     string
	UserID int

	Prompt string
	Params Params

	Models      []string // acceptable model names; empty = any
	Servers     []string // acceptable worker ids; empty = any
	Softprompts []string // ordered acceptable softprompt substrings; "" = no softprompt required

	NTotal     uint
	NRemaining uint
	Tokens     int64 // word count of Prompt, for accounting

	ProcessingGens []*ProcessingGeneration

	Activated    bool
	LastActivity time.Time
	CreatedAt    time.Time

	usageCredited bool // ensures usage.requests is credited exactly once
}

// IsStale reports whether the prompt has had no activity for
// promptStaleWindow (§3), the operator-tunable PROMPT_STALE_SECONDS
// value (Limits.PromptStaleWindow).
func (wp *WaitingPrompt) IsStale(now time.Time, promptStaleWindow time.Duration) bool {
	return now.Sub(wp.LastActivity) > promptStaleWindow
}

// IsComplete reports whether every sub-unit has been dispatched and
// every dispatched child has completed (§3 Completion).
func (wp *WaitingPrompt) IsComplete() bool {
	if wp.NRemaining != 0 {
		return false
	}
	for _, pg := range wp.ProcessingGens {
		if !pg.IsCompleted() {
			return false
		}
	}
	return true
}

// CountProcessing returns the number of dispatched-but-not-completed
// children.
func (wp *WaitingPrompt) CountProcessing() int {
	n := 0
	for _, pg := range wp.ProcessingGens {
		if !pg.IsCompleted() {
			n++
		}
	}
	return n
}

// CountFinished returns the number of completed children.
func (wp *WaitingPrompt) CountFinished() int {
	n := 0
	for _, pg := range wp.ProcessingGens {
		if pg.IsCompleted() {
			n++
		}
	}
	return n
}

// Generations returns the submitted text of every completed child, in
// dispatch order (§8 invariant 6: round-trip ordering).
func (wp *WaitingPrompt) Generations() []string {
	out := make([]string, 0, len(wp.ProcessingGens))
	for _, pg := range wp.ProcessingGens {
		if pg.IsCompleted() {
			out = append(out, pg.Generation)
		}
	}
	return out
}

// CreditUsageOnce reports whether usage.requests should be credited for
// this prompt's completion: true the first time it is called, false on
// every subsequent call (§4.4 submit_result step 6, §8: usage.requests
// is credited exactly once per prompt).
func (wp *WaitingPrompt) CreditUsageOnce() bool {
	if wp.usageCredited {
		return false
	}
	wp.usageCredited = true
	return true
}

// ProcessingGeneration is one dispatched sub-unit, bound to a specific
// worker. Lifecycle: CREATED -> (SetGeneration) -> COMPLETED. No other
// transitions are permitted; a second SetGeneration is rejected.
type ProcessingGeneration struct {
	ID              string
	PromptID        string
	WorkerID        string
	SoftpromptAssigned string

	StartTime time.Time

	Generation  string
	Tokens      int64
	completed   bool
}

// IsCompleted reports whether SetGeneration has already succeeded.
func (pg *ProcessingGeneration) IsCompleted() bool { return pg.completed }

// SetGeneration transitions CREATED -> COMPLETED exactly once. A
// second call returns ErrDuplicate and leaves the stored generation
// unchanged; the broker then reports reward 0 (§3, §4.4 submit_result
// step 3, §8 invariant 2).
func (pg *ProcessingGeneration) SetGeneration(text string, tokens int64) error {
	if pg.completed {
		return ErrDuplicate
	}
	pg.Generation = text
	pg.Tokens = tokens
	pg.completed = true
	return nil
}
