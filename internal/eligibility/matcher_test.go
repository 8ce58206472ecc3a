package eligibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hordebroker/broker/internal/domain"
)

func freshWorker() *domain.Worker {
	return &domain.Worker{
		ID:               "w1",
		Model:            "M",
		MaxLength:        32,
		MaxContentLength: 2048,
		LastCheckIn:      time.Now(),
	}
}

func TestCanGenerateStaleWorkerRejected(t *testing.T) {
	w := freshWorker()
	w.LastCheckIn = time.Now().Add(-domain.DefaultStaleSeconds * time.Second).Add(-time.Second)
	wp := &domain.WaitingPrompt{}
	ok, reason, _ := CanGenerate(w, wp, time.Now(), domain.DefaultStaleSeconds*time.Second)
	assert.False(t, ok)
	assert.Equal(t, ReasonStale, reason)
}

func TestCanGenerateModelMismatch(t *testing.T) {
	w := freshWorker()
	wp := &domain.WaitingPrompt{Models: []string{"other"}}
	ok, reason, _ := CanGenerate(w, wp, time.Now(), domain.DefaultStaleSeconds*time.Second)
	assert.False(t, ok)
	assert.Equal(t, ReasonModels, reason)
}

func TestCanGenerateServerIDMismatch(t *testing.T) {
	w := freshWorker()
	wp := &domain.WaitingPrompt{Servers: []string{"other-id"}}
	ok, reason, _ := CanGenerate(w, wp, time.Now(), domain.DefaultStaleSeconds*time.Second)
	assert.False(t, ok)
	assert.Equal(t, ReasonServerID, reason)
}

func TestCanGenerateMaxContentLengthBoundary(t *testing.T) {
	w := freshWorker()
	wp := &domain.WaitingPrompt{Params: domain.Params{MaxContentLength: 2049}}
	ok, reason, _ := CanGenerate(w, wp, time.Now(), domain.DefaultStaleSeconds*time.Second)
	assert.False(t, ok)
	assert.Equal(t, ReasonMaxContentLength, reason)
}

func TestCanGenerateMaxLengthExactMatchEligible(t *testing.T) {
	w := freshWorker()
	wp := &domain.WaitingPrompt{Params: domain.Params{MaxLength: 32}, Softprompts: []string{""}}
	ok, _, _ := CanGenerate(w, wp, time.Now(), domain.DefaultStaleSeconds*time.Second)
	assert.True(t, ok)
}

func TestCanGenerateSoftpromptEmptyStringMatchesAny(t *testing.T) {
	w := freshWorker()
	wp := &domain.WaitingPrompt{Softprompts: []string{""}}
	ok, _, softprompt := CanGenerate(w, wp, time.Now(), domain.DefaultStaleSeconds*time.Second)
	assert.True(t, ok)
	assert.Empty(t, softprompt)
}

func TestCanGenerateSoftpromptFirstMatchWins(t *testing.T) {
	w := freshWorker()
	w.Softprompts = []string{"fantasy-v2.pt", "scifi-v1.pt"}
	wp := &domain.WaitingPrompt{Softprompts: []string{"scifi", "fantasy"}}
	ok, _, softprompt := CanGenerate(w, wp, time.Now(), domain.DefaultStaleSeconds*time.Second)
	assert.True(t, ok)
	assert.Equal(t, "scifi-v1.pt", softprompt)
}

func TestCanGenerateSoftpromptNoMatchRejected(t *testing.T) {
	w := freshWorker()
	w.Softprompts = []string{"fantasy-v2.pt"}
	wp := &domain.WaitingPrompt{Softprompts: []string{"scifi"}}
	ok, reason, _ := CanGenerate(w, wp, time.Now(), domain.DefaultStaleSeconds*time.Second)
	assert.False(t, ok)
	assert.Equal(t, ReasonMatchingSoftprompt, reason)
}
