package domain

import "time"

// RateLimit is the per-user admission record
type RateLimit struct {
	UserID          int64
	LastHitAt       time.Time // Zero until the first admission
	HourBucketStart time.Time
	HourCount       int
}

// RateLimitConfig represents the admission policy (value object)
type RateLimitConfig struct {
	Window  time.Duration // Minimum gap between two admitted comments
	PerHour int           // Admissions allowed per hourly bucket
}

// NewRateLimit creates a zeroed record whose bucket starts now
func NewRateLimit(userID int64, now time.Time) *RateLimit {
	return &RateLimit{
		UserID:          userID,
		HourBucketStart: now,
	}
}

// Hit evaluates one admission attempt and mutates the record when admitted.
// Returns whether the attempt is admitted and how many admissions remain this hour.
func (r *RateLimit) Hit(now time.Time, cfg RateLimitConfig) (bool, int) {
	if r.HourCount < 0 {
		r.HourCount = 0
	}

	// Cooldown between two comments
	if !r.LastHitAt.IsZero() && now.Sub(r.LastHitAt) < cfg.Window {
		return false, max(0, cfg.PerHour-r.HourCount)
	}

	// Hourly bucket
	if r.HourBucketStart.IsZero() {
		r.HourBucketStart = now
	}
	if now.Sub(r.HourBucketStart) >= time.Hour {
		r.HourBucketStart = now
		r.HourCount = 0
	}

	if r.HourCount >= cfg.PerHour {
		return false, 0
	}

	r.LastHitAt = now
	r.HourCount++
	return true, cfg.PerHour - r.HourCount
}
