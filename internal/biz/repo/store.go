package repo

import (
	"context"
	"time"

	"github.com/kvantora/comment-bridge/internal/biz/domain"
)

// StoreRepo persists users, channels and comment history
type StoreRepo interface {
	// UpsertUser creates the user or refreshes the username
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpsertChannel creates the channel or refreshes username and title
	UpsertChannel(ctx context.Context, channel *domain.Channel) error

	// GetChannel gets a channel by chat id, nil if unknown
	GetChannel(ctx context.Context, chatID int64) (*domain.Channel, error)

	// SaveComment inserts the comment and its media rows atomically and returns the comment id
	SaveComment(ctx context.Context, comment *domain.Comment) (int64, error)

	// ListComments lists the latest comments on a post, newest first, media included
	ListComments(ctx context.Context, channelID int64, postID int, limit int) ([]*domain.Comment, error)

	Close() error
}

// RateLimitRepo persists per-user admission records
type RateLimitRepo interface {
	// GetOrCreate gets the record for a user, creating a zeroed one whose bucket starts at now
	GetOrCreate(ctx context.Context, userID int64, now time.Time) (*domain.RateLimit, error)

	// Save writes the record back
	Save(ctx context.Context, rl *domain.RateLimit) error

	// DeleteIdle removes records whose last hit and bucket start are both before the cutoff
	DeleteIdle(ctx context.Context, before time.Time) (int64, error)
}
