package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/kvantora/comment-bridge/internal/biz/usecase"
)

// DefaultJanitorSchedule runs housekeeping every ten minutes
const DefaultJanitorSchedule = "@every 10m"

// Janitor runs periodic housekeeping: stale post selections are dropped and idle
// rate limit records are pruned
type Janitor struct {
	cron         *cron.Cron
	schedule     string
	selections   *usecase.SelectionStore
	limiter      *usecase.RateLimiterUsecase
	selectionTTL time.Duration
	now          func() time.Time
}

// NewJanitor creates a new janitor
func NewJanitor(
	selections *usecase.SelectionStore,
	limiter *usecase.RateLimiterUsecase,
	selectionTTL time.Duration,
	schedule string,
) *Janitor {
	if schedule == "" {
		schedule = DefaultJanitorSchedule
	}
	return &Janitor{
		cron:         cron.New(),
		schedule:     schedule,
		selections:   selections,
		limiter:      limiter,
		selectionTTL: selectionTTL,
		now:          time.Now,
	}
}

// Start schedules the housekeeping job and starts the cron loop
func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc(j.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := j.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("janitor run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule janitor %q: %w", j.schedule, err)
	}

	j.cron.Start()
	log.Info().Str("schedule", j.schedule).Dur("selection_ttl", j.selectionTTL).Msg("janitor started")
	return nil
}

// Stop halts the cron loop and waits for a running job to finish
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
	log.Info().Msg("janitor stopped")
}

// RunOnce performs one housekeeping pass
func (j *Janitor) RunOnce(ctx context.Context) error {
	now := j.now()

	expired := 0
	if j.selectionTTL > 0 {
		expired = j.selections.ExpireBefore(now.Add(-j.selectionTTL))
	}

	pruned, err := j.limiter.PruneIdle(ctx, now)
	if err != nil {
		return fmt.Errorf("prune rate limits: %w", err)
	}

	if expired > 0 || pruned > 0 {
		log.Info().Int("selections_expired", expired).Int64("rate_limits_pruned", pruned).Msg("janitor pass")
	}
	return nil
}
