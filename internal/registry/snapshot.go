package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hordebroker/broker/internal/domain"
)

func userRecordToUser(rec userRecord) *domain.User {
	u := &domain.User{
		ID:        rec.ID,
		Username:  rec.Username,
		Email:     rec.Email,
		APIKey:    rec.APIKey,
		Inviter:   rec.Inviter,
		Kudos:     rec.Kudos,
		CreatedAt: rec.CreationDate,
	}
	u.Contributions.Tokens = rec.Contributions.Tokens
	u.Contributions.Fulfillments = rec.Contributions.Fulfillments
	u.Usage.Tokens = rec.Usage.Tokens
	u.Usage.Requests = rec.Usage.Requests
	return u
}

// userRecord is the on-disk shape of one entry in users.json (§6).
type userRecord struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	APIKey       string `json:"api_key"`
	Kudos        int64  `json:"kudos"`
	Contributions struct {
		Tokens       int64 `json:"tokens"`
		Fulfillments int64 `json:"fulfillments"`
	} `json:"contributions"`
	Usage struct {
		Tokens   int64 `json:"tokens"`
		Requests int64 `json:"requests"`
	} `json:"usage"`
	CreationDate time.Time `json:"creation_date"`
	Inviter      string    `json:"inviter"`
}

// Snapshot is the full persisted state of the registry (§6: users.json,
// usage.json, contributions.json).
type Snapshot struct {
	Users         []userRecord     `json:"-"`
	Usage         map[string]int64 `json:"-"`
	Contributions map[string]int64 `json:"-"`
}

func (r *Registry) buildSnapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]userRecord, 0, len(r.usersByID))
	for _, u := range r.usersByID {
		rec := userRecord{
			ID:           u.ID,
			Username:     u.Username,
			Email:        u.Email,
			APIKey:       u.APIKey,
			Kudos:        u.Kudos,
			CreationDate: u.CreatedAt,
			Inviter:      u.Inviter,
		}
		rec.Contributions.Tokens = u.Contributions.Tokens
		rec.Contributions.Fulfillments = u.Contributions.Fulfillments
		rec.Usage.Tokens = u.Usage.Tokens
		rec.Usage.Requests = u.Usage.Requests
		users = append(users, rec)
	}
	usage := make(map[string]int64, len(r.usersByID))
	contrib := make(map[string]int64, len(r.usersByID))
	for _, u := range r.usersByID {
		usage[u.UniqueAlias()] = u.Usage.Tokens
		contrib[u.UniqueAlias()] = u.Contributions.Tokens
	}
	return Snapshot{Users: users, Usage: usage, Contributions: contrib}
}

// WriteSnapshot performs a whole-file atomic rewrite of users.json,
// usage.json, and contributions.json under dir (§6). Each file is
// written to a temp path and renamed into place; transient write
// failures are retried with backoff rather than aborting the tick.
func (r *Registry) WriteSnapshot(ctx context.Context, dir string) error {
	snap := r.buildSnapshot()
	files := map[string]any{
		filepath.Join(dir, "users.json"):         snap.Users,
		filepath.Join(dir, "usage.json"):          snap.Usage,
		filepath.Join(dir, "contributions.json"):  snap.Contributions,
	}
	for path, v := range files {
		if err := writeJSONAtomic(ctx, path, v); err != nil {
			return fmt.Errorf("op=registry.snapshot.write: %w", err)
		}
	}
	return nil
}

func writeJSONAtomic(ctx context.Context, path string, v any) error {
	op := func() error {
		body, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return backoff.Permanent(err)
		}
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, body, 0o644); err != nil {
			return err
		}
		return os.Rename(tmp, path)
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(op, bo)
}

// LoadSnapshot populates the registry from users.json under dir, if
// present. Usage/contributions files are derived from users.json on
// load (they are a read-side projection, not a second source of
// truth), so only users.json is consulted here. A missing directory
// or file is not an error: the registry simply starts empty.
func (r *Registry) LoadSnapshot(dir string) error {
	body, err := os.ReadFile(filepath.Join(dir, "users.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("op=registry.snapshot.load: %w", err)
	}
	var users []userRecord
	if err := json.Unmarshal(body, &users); err != nil {
		return fmt.Errorf("op=registry.snapshot.load_parse: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range users {
		u := userRecordToUser(rec)
		r.usersByID[u.ID] = u
		r.usersByAPIKey[u.APIKey] = u
		r.usersByEmail[u.Email] = u
		if u.ID >= r.nextUserID {
			r.nextUserID = u.ID + 1
		}
	}
	return nil
}

// RunSnapshotLoop writes a snapshot every interval until ctx is
// cancelled (§5 resources: "writes are whole-file replacements done
// every 10s").
func (r *Registry) RunSnapshotLoop(ctx context.Context, dir string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.WriteSnapshot(ctx, dir); err != nil {
				slog.Error("registry snapshot write failed", slog.Any("error", err))
			}
		}
	}
}
