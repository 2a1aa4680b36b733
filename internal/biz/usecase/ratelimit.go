package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/kvantora/comment-bridge/internal/biz/domain"
	"github.com/kvantora/comment-bridge/internal/biz/repo"
)

// idleRetention is how long an untouched rate limit record is kept
const idleRetention = 2 * time.Hour

// RateLimiterUsecase admits new comments per user
type RateLimiterUsecase struct {
	repo  repo.RateLimitRepo
	cfg   domain.RateLimitConfig
	locks *keyedMutex
}

// NewRateLimiterUsecase creates a new rate limiter usecase
func NewRateLimiterUsecase(rateRepo repo.RateLimitRepo, cfg domain.RateLimitConfig) *RateLimiterUsecase {
	return &RateLimiterUsecase{
		repo:  rateRepo,
		cfg:   cfg,
		locks: newKeyedMutex(),
	}
}

// CheckAndAdmit applies one admission attempt for the user and persists the result.
// Attempts for the same user are serialized, so two concurrent attempts with one slot
// left admit exactly one.
func (uc *RateLimiterUsecase) CheckAndAdmit(ctx context.Context, userID int64, now time.Time) (bool, int, error) {
	unlock := uc.locks.Lock(userID)
	defer unlock()

	rl, err := uc.repo.GetOrCreate(ctx, userID, now)
	if err != nil {
		return false, 0, fmt.Errorf("get rate limit: %w", err)
	}

	admitted, remaining := rl.Hit(now, uc.cfg)

	// A denied hit may still have rolled the hour bucket over
	if err := uc.repo.Save(ctx, rl); err != nil {
		return false, 0, fmt.Errorf("save rate limit: %w", err)
	}
	return admitted, remaining, nil
}

// PruneIdle deletes records untouched for longer than the retention period
func (uc *RateLimiterUsecase) PruneIdle(ctx context.Context, now time.Time) (int64, error) {
	return uc.repo.DeleteIdle(ctx, now.Add(-idleRetention))
}
