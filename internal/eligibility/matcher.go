// Package eligibility implements the pure worker/prompt matching
// predicate used both for admission and for dispatch (spec §4.3).
package eligibility

import (
	"strings"
	"time"

	"github.com/hordebroker/broker/internal/domain"
)

// Reason names the first failing clause of CanGenerate, or "" on
// success. Values match the wire vocabulary of the original cluster so
// skip-reason accounting (poll_work step 4) stays stable for
// operators.
type Reason string

// Rejection reasons, in evaluation order.
const (
	ReasonNone               Reason = ""
	ReasonStale              Reason = "stale_worker"
	ReasonModels             Reason = "models"
	ReasonServerID           Reason = "server_id"
	ReasonMaxContentLength   Reason = "max_content_length"
	ReasonMaxLength          Reason = "max_length"
	ReasonMatchingSoftprompt Reason = "matching_softprompt"
)

// CanGenerate evaluates whether worker may take the next unit of wp,
// at time now. Clauses are evaluated in the order given by spec §4.3;
// the first failing clause wins. On success it also returns the
// softprompt name the worker should load, chosen by first match in
// wp.Softprompts order. staleWindow is the operator-tunable
// STALE_SECONDS value (Limits.StaleWindow).
func CanGenerate(worker *domain.Worker, wp *domain.WaitingPrompt, now time.Time, staleWindow time.Duration) (ok bool, reason Reason, softprompt string) {
	if worker.IsStale(now, staleWindow) {
		return false, ReasonStale, ""
	}
	if len(wp.Models) > 0 && !contains(wp.Models, worker.Model) {
		return false, ReasonModels, ""
	}
	if len(wp.Servers) > 0 && !contains(wp.Servers, worker.ID) {
		return false, ReasonServerID, ""
	}
	if wp.Params.MaxContentLength > uint(worker.MaxContentLength) {
		return false, ReasonMaxContentLength, ""
	}
	if wp.Params.MaxLength > uint(worker.MaxLength) {
		return false, ReasonMaxLength, ""
	}
	sp, matched := matchSoftprompt(wp.Softprompts, worker.Softprompts)
	if !matched {
		return false, ReasonMatchingSoftprompt, ""
	}
	return true, ReasonNone, sp
}

// matchSoftprompt finds the first entry in wanted (in order) that the
// worker can satisfy. An empty-string entry always matches, with an
// empty assignment. A non-empty entry matches the first worker
// softprompt filename that contains it as a substring (§4.3 step 6).
func matchSoftprompt(wanted []string, available []string) (assigned string, ok bool) {
	for _, sp := range wanted {
		if sp == "" {
			return "", true
		}
		for _, name := range available {
			if strings.Contains(name, sp) {
				return name, true
			}
		}
	}
	return "", false
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
