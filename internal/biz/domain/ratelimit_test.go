package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testRateCfg = RateLimitConfig{Window: 10 * time.Second, PerHour: 12}

func TestRateLimit_FirstHitAdmitted(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimit(1, now)

	ok, left := rl.Hit(now, testRateCfg)

	assert.True(t, ok)
	assert.Equal(t, 11, left)
	assert.Equal(t, 1, rl.HourCount)
	assert.Equal(t, now, rl.LastHitAt)
}

func TestRateLimit_CooldownRejectsWithoutCounting(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimit(1, now)
	rl.Hit(now, testRateCfg)

	ok, left := rl.Hit(now.Add(9*time.Second), testRateCfg)

	assert.False(t, ok)
	assert.Equal(t, 11, left)
	assert.Equal(t, 1, rl.HourCount)
	assert.Equal(t, now, rl.LastHitAt)
}

func TestRateLimit_HourlyQuota(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimit(1, start)

	now := start
	for i := 0; i < 12; i++ {
		ok, left := rl.Hit(now, testRateCfg)
		assert.True(t, ok, "attempt %d", i+1)
		assert.Equal(t, 11-i, left)
		now = now.Add(11 * time.Second)
	}

	ok, left := rl.Hit(now, testRateCfg)
	assert.False(t, ok)
	assert.Equal(t, 0, left)

	// Bucket elapses, counter resets
	ok, left = rl.Hit(start.Add(time.Hour), testRateCfg)
	assert.True(t, ok)
	assert.Equal(t, 11, left)
	assert.Equal(t, start.Add(time.Hour), rl.HourBucketStart)
}

func TestRateLimit_NegativeCountIsRepaired(t *testing.T) {
	now := time.Now()
	rl := &RateLimit{UserID: 1, HourBucketStart: now, HourCount: -3}

	ok, left := rl.Hit(now, testRateCfg)

	assert.True(t, ok)
	assert.Equal(t, 11, left)
}
