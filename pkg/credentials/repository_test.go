package credentials

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	repo, err := NewRepository(db)
	require.NoError(t, err)
	return repo
}

func testCredential(token, owner string, createdAt time.Time) *Credential {
	return &Credential{
		Token:         token,
		Fingerprint:   "ff00ff00ff00ff00ff00ff00ff00ff00",
		AccountName:   "gopher weekly",
		Owner:         owner,
		RequestCount:  0,
		WindowResetAt: createdAt.Add(time.Hour),
		CreatedAt:     createdAt,
		ExpiresAt:     createdAt.Add(88 * time.Hour),
	}
}

func TestRepositorySaveGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Save(ctx, testCredential("tok-1", "alice", now)))

	cred, err := repo.Get(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", cred.Owner)
	assert.Equal(t, "gopher weekly", cred.AccountName)
	assert.True(t, cred.ExpiresAt.Equal(now.Add(88*time.Hour)))
}

func TestRepositoryGetMissing(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryListByOwner(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Save(ctx, testCredential("a", "alice", now.Add(-2*time.Hour))))
	require.NoError(t, repo.Save(ctx, testCredential("b", "alice", now.Add(-time.Hour))))
	require.NoError(t, repo.Save(ctx, testCredential("c", "bob", now)))

	creds, err := repo.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, creds, 2)
	// Newest first.
	assert.Equal(t, "b", creds[0].Token)

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRepositorySetCurrentKeepsOnePerOwner(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Save(ctx, testCredential("a", "alice", now)))
	require.NoError(t, repo.Save(ctx, testCredential("b", "alice", now)))
	require.NoError(t, repo.Save(ctx, testCredential("c", "bob", now)))

	require.NoError(t, repo.SetCurrent(ctx, "alice", "a"))
	require.NoError(t, repo.SetCurrent(ctx, "bob", "c"))
	require.NoError(t, repo.SetCurrent(ctx, "alice", "b"))

	current, err := repo.Current(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "b", current.Token)

	// Switching alice's current record leaves bob's untouched.
	current, err = repo.Current(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "c", current.Token)

	require.NoError(t, repo.CheckCurrentInvariant(ctx))
}

func TestRepositorySetCurrentConcurrentSwitches(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	tokens := []string{"a", "b", "c", "d"}
	for _, token := range tokens {
		require.NoError(t, repo.Save(ctx, testCredential(token, "alice", now)))
	}

	// Racing switches may land in any order, but the owner must end up
	// with exactly one current record.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		for _, token := range tokens {
			wg.Add(1)
			go func(token string) {
				defer wg.Done()
				assert.NoError(t, repo.SetCurrent(ctx, "alice", token))
			}(token)
		}
	}
	wg.Wait()

	require.NoError(t, repo.CheckCurrentInvariant(ctx))

	current, err := repo.Current(ctx, "alice")
	require.NoError(t, err)
	assert.Contains(t, tokens, current.Token)
}

func TestRepositorySetCurrentUnknownToken(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.SetCurrent(context.Background(), "alice", "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateUsageWithinWindow(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	cred := testCredential("tok", "alice", now)
	cred.RequestCount = 10
	require.NoError(t, repo.Save(ctx, cred))

	updated, err := repo.UpdateUsage(ctx, "tok", 1, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 11, updated.RequestCount)
	assert.True(t, updated.WindowResetAt.Equal(cred.WindowResetAt))
}

func TestUpdateUsageResetsLapsedWindow(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Second)

	// Saturated quota with a window boundary exactly at t0.
	cred := testCredential("tok", "alice", t0.Add(-time.Hour))
	cred.RequestCount = 59
	cred.WindowResetAt = t0
	require.NoError(t, repo.Save(ctx, cred))

	// One second past the boundary: reset to zero, advance, then count.
	updated, err := repo.UpdateUsage(ctx, "tok", 1, t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, updated.RequestCount)
	assert.True(t, updated.WindowResetAt.After(t0), "window must advance past the old boundary")
}

func TestSweepExpired(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	fresh := testCredential("fresh", "alice", now)
	stale := testCredential("stale", "alice", now.Add(-100*time.Hour))
	require.NoError(t, repo.Save(ctx, fresh))
	require.NoError(t, repo.Save(ctx, stale))

	removed, err := repo.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	_, err = repo.Get(ctx, "stale")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.Get(ctx, "fresh")
	assert.NoError(t, err)
}
