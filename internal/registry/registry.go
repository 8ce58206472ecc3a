// Package registry implements the authoritative in-memory store of
// Users and Workers, their lookups and aggregates, and the periodic
// snapshot to disk (spec §4.1). All operations take the registry's own
// mutex briefly; scheduler.Broker additionally wraps Registry +
// index.PromptIndex + index.GenerationIndex under one outer lock for
// cross-entity atomicity (spec §5), so Registry's own lock only
// matters for callers that touch the Registry in isolation (snapshot,
// HTTP read endpoints).
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hordebroker/broker/internal/domain"
)

// Registry owns Users and Workers. Workers hold a UserID lookup key,
// not an ownership edge (spec §9 cyclic-ownership design note).
type Registry struct {
	mu sync.RWMutex

	usersByID     map[int]*domain.User
	usersByAPIKey map[string]*domain.User
	usersByEmail  map[string]*domain.User
	nextUserID    int

	workersByID   map[string]*domain.Worker
	workersByName map[string]*domain.Worker // key: "userID/name"

	staleWindow time.Duration
}

// New constructs an empty Registry. staleWindow is the
// operator-tunable STALE_SECONDS value (domain.Limits.StaleWindow)
// used to decide worker liveness in CountActiveWorkers,
// GetAvailableModels, ActiveWorkers, and TopServer.
func New(staleWindow time.Duration) *Registry {
	return &Registry{
		usersByID:     make(map[int]*domain.User),
		usersByAPIKey: make(map[string]*domain.User),
		usersByEmail:  make(map[string]*domain.User),
		workersByID:   make(map[string]*domain.Worker),
		workersByName: make(map[string]*domain.Worker),
		nextUserID:    1,
		staleWindow:   staleWindow,
	}
}

// FindUserByAPIKey returns the user owning k, or nil.
func (r *Registry) FindUserByAPIKey(k string) *domain.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.usersByAPIKey[k]
}

// FindUserByEmail returns the user with email e, or nil.
func (r *Registry) FindUserByEmail(e string) *domain.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.usersByEmail[e]
}

// FindUserByUsername returns a user whose username is u, or nil.
// Usernames are not unique (§3); when several users share u, which one
// is returned is not defined.
func (r *Registry) FindUserByUsername(u string) *domain.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, usr := range r.usersByID {
		if usr.Username == u {
			return usr
		}
	}
	return nil
}

// FindUserByID returns the user with id, or nil.
func (r *Registry) FindUserByID(id int) *domain.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.usersByID[id]
}

// CreateUser assigns the next monotonic id and registers a new user.
// Rejects a duplicate email (§4.1).
func (r *Registry) CreateUser(username, email, apiKey, inviter string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.usersByEmail[email]; exists {
		return nil, fmt.Errorf("op=registry.create_user: %w: email already registered", domain.ErrConflict)
	}
	u := &domain.User{
		ID:        r.nextUserID,
		Username:  username,
		Email:     email,
		APIKey:    apiKey,
		Inviter:   inviter,
		CreatedAt: time.Now().UTC(),
	}
	r.nextUserID++
	r.usersByID[u.ID] = u
	r.usersByAPIKey[u.APIKey] = u
	r.usersByEmail[u.Email] = u
	return u, nil
}

// FindWorkerByName returns the worker for "userID/name", or nil.
func (r *Registry) FindWorkerByName(userID int, name string) *domain.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.workersByName[workerKey(userID, name)]
}

// FindWorkerByID returns the worker with id, or nil.
func (r *Registry) FindWorkerByID(id string) *domain.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.workersByID[id]
}

// FindWorkerByNameAnyOwner returns a worker registered under name by
// any user, used to detect identity collisions across owners
// (§4.1, §4.4 poll_work step 1, SPEC_FULL.md Open Question 3).
func (r *Registry) FindWorkerByNameAnyOwner(name string) *domain.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.workersByID {
		if w.Name == name {
			return w
		}
	}
	return nil
}

// CreateWorker registers a brand new worker for (userID, name) and
// returns it (§3: "created on the first poll whose (api_key, name)
// pair is not found").
func (r *Registry) CreateWorker(userID int, name string) *domain.Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := &domain.Worker{
		ID:        uuid.NewString(),
		Name:      name,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	r.workersByID[w.ID] = w
	r.workersByName[workerKey(userID, name)] = w
	return w
}

func workerKey(userID int, name string) string { return fmt.Sprintf("%d/%s", userID, name) }

// CountActiveWorkers returns the number of non-stale workers.
func (r *Registry) CountActiveWorkers(now time.Time) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, w := range r.workersByID {
		if !w.IsStale(now, r.staleWindow) {
			n++
		}
	}
	return n
}

// GetAvailableModels returns the sorted set of model names across
// non-stale workers.
func (r *Registry) GetAvailableModels(now time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := make(map[string]struct{})
	for _, w := range r.workersByID {
		if !w.IsStale(now, r.staleWindow) && w.Model != "" {
			set[w.Model] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// ActiveWorkers returns every non-stale worker, sorted by id for
// deterministic listing output.
func (r *Registry) ActiveWorkers(now time.Time) []*domain.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Worker, 0, len(r.workersByID))
	for _, w := range r.workersByID {
		if !w.IsStale(now, r.staleWindow) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllWorkers returns every worker regardless of staleness. Used by the
// broker's sync-admission check (submit_prompt step 4), which leaves it
// to CanGenerate to reject stale workers per §4.3 clause 1.
func (r *Registry) AllWorkers() []*domain.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Worker, 0, len(r.workersByID))
	for _, w := range r.workersByID {
		out = append(out, w)
	}
	return out
}

// TopContributor returns the user with the highest lifetime
// contribution tokens, or nil if there are no users.
func (r *Registry) TopContributor() *domain.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *domain.User
	for _, u := range r.usersByID {
		if best == nil || u.Contributions.Tokens > best.Contributions.Tokens {
			best = u
		}
	}
	return best
}

// TopServer returns the non-stale worker with the highest lifetime
// contributions, or nil.
func (r *Registry) TopServer(now time.Time) *domain.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *domain.Worker
	for _, w := range r.workersByID {
		if w.IsStale(now, r.staleWindow) {
			continue
		}
		if best == nil || w.Contributions > best.Contributions {
			best = w
		}
	}
	return best
}

// GetTotalUsage sums requested tokens across all users.
func (r *Registry) GetTotalUsage() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total int64
	for _, u := range r.usersByID {
		total += u.Usage.Tokens
	}
	return total
}

// GetRequestAvg returns the mean requested tokens per user, or 0 if
// there are no users.
func (r *Registry) GetRequestAvg() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.usersByID) == 0 {
		return 0
	}
	var total int64
	for _, u := range r.usersByID {
		total += u.Usage.Tokens
	}
	return float64(total) / float64(len(r.usersByID))
}

// UsageByAlias returns a map of unique_alias -> requested tokens (the
// shape persisted to usage.json, §6).
func (r *Registry) UsageByAlias() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int64, len(r.usersByID))
	for _, u := range r.usersByID {
		out[u.UniqueAlias()] = u.Usage.Tokens
	}
	return out
}

// ContributionsByAlias returns a map of unique_alias -> produced
// tokens (the shape persisted to contributions.json, §6).
func (r *Registry) ContributionsByAlias() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int64, len(r.usersByID))
	for _, u := range r.usersByID {
		out[u.UniqueAlias()] = u.Contributions.Tokens
	}
	return out
}
