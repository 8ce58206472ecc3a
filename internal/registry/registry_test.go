package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hordebroker/broker/internal/domain"
)

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	r := New(domain.DefaultStaleSeconds * time.Second)
	_, err := r.CreateUser("ada", "ada@example.com", "key1", "")
	require.NoError(t, err)

	_, err = r.CreateUser("ada2", "ada@example.com", "key2", "")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestFindUserByAPIKeyAndUsername(t *testing.T) {
	r := New(domain.DefaultStaleSeconds * time.Second)
	u, err := r.CreateUser("ada", "ada@example.com", "key1", "")
	require.NoError(t, err)

	assert.Equal(t, u, r.FindUserByAPIKey("key1"))
	assert.Equal(t, u, r.FindUserByUsername("ada"))
	assert.Nil(t, r.FindUserByAPIKey("missing"))
}

func TestCreateWorkerAndLookup(t *testing.T) {
	r := New(domain.DefaultStaleSeconds * time.Second)
	u, err := r.CreateUser("ada", "ada@example.com", "key1", "")
	require.NoError(t, err)

	w := r.CreateWorker(u.ID, "w1")
	assert.Equal(t, w, r.FindWorkerByName(u.ID, "w1"))
	assert.Equal(t, w, r.FindWorkerByID(w.ID))
	assert.Equal(t, w, r.FindWorkerByNameAnyOwner("w1"))
	assert.Nil(t, r.FindWorkerByName(u.ID+1, "w1"))
}

func TestActiveWorkersExcludesStale(t *testing.T) {
	r := New(domain.DefaultStaleSeconds * time.Second)
	u, err := r.CreateUser("ada", "ada@example.com", "key1", "")
	require.NoError(t, err)

	now := time.Now()
	fresh := r.CreateWorker(u.ID, "fresh")
	fresh.CheckIn(now, "M", 32, 2048, nil, domain.DefaultStaleSeconds*time.Second)
	stale := r.CreateWorker(u.ID, "stale")
	stale.CheckIn(now.Add(-domain.DefaultStaleSeconds*time.Second).Add(-time.Second), "M", 32, 2048, nil, domain.DefaultStaleSeconds*time.Second)

	active := r.ActiveWorkers(now)
	require.Len(t, active, 1)
	assert.Equal(t, fresh.ID, active[0].ID)
	assert.Equal(t, 1, r.CountActiveWorkers(now))
}

func TestUsageAndContributionsByAlias(t *testing.T) {
	r := New(domain.DefaultStaleSeconds * time.Second)
	u, err := r.CreateUser("ada", "ada@example.com", "key1", "")
	require.NoError(t, err)
	u.Usage.Tokens = 10
	u.Contributions.Tokens = 5

	assert.Equal(t, int64(10), r.UsageByAlias()[u.UniqueAlias()])
	assert.Equal(t, int64(5), r.ContributionsByAlias()[u.UniqueAlias()])
	assert.Equal(t, int64(10), r.GetTotalUsage())
	assert.Equal(t, float64(10), r.GetRequestAvg())
}
