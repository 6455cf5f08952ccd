package credentials

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/fightinglucida/FastMP/pkg/logger"
)

// ErrNotAvailable means no credential survived filtering. Recoverable:
// the caller prompts a fresh login.
var ErrNotAvailable = stderrors.New("no credential available")

// Scheduler picks which credential serves the next sync run. Selection
// favors the least-used unexpired record under quota, breaking ties by
// earliest creation so rotation stays fair.
type Scheduler struct {
	repo        *Repository
	hourlyLimit int
	now         func() time.Time
	logger      logger.Logger
}

// NewScheduler builds a scheduler over the repository with the given
// per-hour request limit.
func NewScheduler(repo *Repository, hourlyLimit int, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Scheduler{
		repo:        repo,
		hourlyLimit: hourlyLimit,
		now:         time.Now,
		logger:      log,
	}
}

// effectiveCount is the request count the current instant observes: a
// lapsed window counts as empty regardless of the stored number.
func (s *Scheduler) effectiveCount(cred *Credential, now time.Time) int {
	if !now.Before(cred.WindowResetAt) {
		return 0
	}
	return cred.RequestCount
}

// Acquire selects the best available credential, optionally restricted to
// one owner. Returns ErrNotAvailable when every record is expired or over
// quota.
func (s *Scheduler) Acquire(ctx context.Context, owner string) (*Credential, error) {
	creds, err := s.repo.List(ctx, owner)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var best *Credential
	bestCount := 0
	for i := range creds {
		cred := &creds[i]
		if cred.Expired(now) {
			continue
		}
		count := s.effectiveCount(cred, now)
		if count >= s.hourlyLimit {
			continue
		}
		if best == nil ||
			count < bestCount ||
			(count == bestCount && cred.CreatedAt.Before(best.CreatedAt)) {
			best = cred
			bestCount = count
		}
	}

	if best == nil {
		s.logger.WarnWithFields("no credential available", map[string]interface{}{
			"owner":      owner,
			"candidates": len(creds),
		})
		return nil, ErrNotAvailable
	}

	s.logger.DebugWithFields("credential acquired", map[string]interface{}{
		"token":         best.Token,
		"request_count": bestCount,
	})
	return best, nil
}

// RecordUsage reports n consumed requests for the token, applying the
// window rollover before counting.
func (s *Scheduler) RecordUsage(ctx context.Context, token string, n int) (*Credential, error) {
	return s.repo.UpdateUsage(ctx, token, n, s.now())
}

// Sweep deletes expired credential records and reports how many went.
func (s *Scheduler) Sweep(ctx context.Context) (int64, error) {
	removed, err := s.repo.SweepExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.InfoWithFields("swept expired credentials", map[string]interface{}{
			"removed": removed,
		})
	}
	return removed, nil
}
