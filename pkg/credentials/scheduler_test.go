package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fightinglucida/FastMP/pkg/logger"
)

func newTestScheduler(t *testing.T, now time.Time) (*Scheduler, *Repository) {
	t.Helper()
	repo := newTestRepo(t)
	s := NewScheduler(repo, 59, logger.GetLogger())
	s.now = func() time.Time { return now }
	return s, repo
}

func TestAcquirePrefersLeastUsed(t *testing.T) {
	now := time.Now().UTC()
	s, repo := newTestScheduler(t, now)
	ctx := context.Background()

	busy := testCredential("busy", "alice", now.Add(-time.Hour))
	busy.RequestCount = 30
	busy.WindowResetAt = now.Add(30 * time.Minute)
	idle := testCredential("idle", "alice", now.Add(-time.Minute))
	idle.RequestCount = 2
	idle.WindowResetAt = now.Add(30 * time.Minute)
	require.NoError(t, repo.Save(ctx, busy))
	require.NoError(t, repo.Save(ctx, idle))

	cred, err := s.Acquire(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "idle", cred.Token)
}

func TestAcquireTieBreaksOnCreation(t *testing.T) {
	now := time.Now().UTC()
	s, repo := newTestScheduler(t, now)
	ctx := context.Background()

	older := testCredential("older", "alice", now.Add(-2*time.Hour))
	newer := testCredential("newer", "alice", now.Add(-time.Hour))
	older.WindowResetAt = now.Add(30 * time.Minute)
	newer.WindowResetAt = now.Add(30 * time.Minute)
	require.NoError(t, repo.Save(ctx, older))
	require.NoError(t, repo.Save(ctx, newer))

	cred, err := s.Acquire(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "older", cred.Token)
}

func TestAcquireSkipsExpiredAndSaturated(t *testing.T) {
	now := time.Now().UTC()
	s, repo := newTestScheduler(t, now)
	ctx := context.Background()

	expired := testCredential("expired", "alice", now.Add(-100*time.Hour))
	saturated := testCredential("saturated", "alice", now.Add(-time.Hour))
	saturated.RequestCount = 59
	saturated.WindowResetAt = now.Add(30 * time.Minute)
	require.NoError(t, repo.Save(ctx, expired))
	require.NoError(t, repo.Save(ctx, saturated))

	_, err := s.Acquire(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotAvailable)
}

func TestAcquireSeesLapsedWindowAsEmpty(t *testing.T) {
	t0 := time.Now().UTC()
	s, repo := newTestScheduler(t, t0.Add(time.Second))
	ctx := context.Background()

	// Saturated, but the window boundary has passed: available again.
	cred := testCredential("tok", "alice", t0.Add(-time.Hour))
	cred.RequestCount = 59
	cred.WindowResetAt = t0
	require.NoError(t, repo.Save(ctx, cred))

	acquired, err := s.Acquire(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "tok", acquired.Token)
}

func TestAcquireRestrictsToOwner(t *testing.T) {
	now := time.Now().UTC()
	s, repo := newTestScheduler(t, now)
	ctx := context.Background()

	bobs := testCredential("bobs", "bob", now)
	bobs.WindowResetAt = now.Add(30 * time.Minute)
	require.NoError(t, repo.Save(ctx, bobs))

	_, err := s.Acquire(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotAvailable)

	cred, err := s.Acquire(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bobs", cred.Token)
}

func TestRecordUsageThenAcquireAfterRollover(t *testing.T) {
	t0 := time.Now().UTC().Truncate(time.Second)
	s, repo := newTestScheduler(t, t0.Add(time.Second))
	ctx := context.Background()

	cred := testCredential("tok", "alice", t0.Add(-time.Hour))
	cred.RequestCount = 59
	cred.WindowResetAt = t0
	require.NoError(t, repo.Save(ctx, cred))

	updated, err := s.RecordUsage(ctx, "tok", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.RequestCount)

	acquired, err := s.Acquire(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "tok", acquired.Token)
}

func TestSchedulerSweep(t *testing.T) {
	now := time.Now().UTC()
	s, repo := newTestScheduler(t, now)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testCredential("stale", "alice", now.Add(-200*time.Hour))))
	require.NoError(t, repo.Save(ctx, testCredential("fresh", "alice", now)))

	removed, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}
