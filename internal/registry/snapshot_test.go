package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hordebroker/broker/internal/domain"
)

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()

	r := New(domain.DefaultStaleSeconds * time.Second)
	u, err := r.CreateUser("ada", "ada@example.com", "key1", "")
	require.NoError(t, err)
	u.Kudos = 42
	u.Usage.Tokens = 7
	u.Contributions.Tokens = 3

	require.NoError(t, r.WriteSnapshot(context.Background(), dir))

	r2 := New(domain.DefaultStaleSeconds * time.Second)
	require.NoError(t, r2.LoadSnapshot(dir))

	loaded := r2.FindUserByAPIKey("key1")
	require.NotNil(t, loaded)
	assert.Equal(t, u.Username, loaded.Username)
	assert.Equal(t, u.Kudos, loaded.Kudos)
	assert.Equal(t, u.Usage.Tokens, loaded.Usage.Tokens)
	assert.Equal(t, u.Contributions.Tokens, loaded.Contributions.Tokens)
}

func TestLoadSnapshotMissingDirIsNotError(t *testing.T) {
	r := New(domain.DefaultStaleSeconds * time.Second)
	assert.NoError(t, r.LoadSnapshot(t.TempDir()+"/does-not-exist"))
}
