package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kvantora/comment-bridge/internal/biz/domain"
)

// PostgresStore implements the store and rate limit repositories on Postgres.
// The schema is managed by RunMigrations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database and checks it is reachable
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// UpsertUser creates the user or refreshes the username
func (s *PostgresStore) UpsertUser(ctx context.Context, user *domain.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (tg_id, username, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (tg_id) DO UPDATE SET username = EXCLUDED.username
	`, user.TgID, user.Username, orNow(user.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// UpsertChannel creates the channel or refreshes username and title
func (s *PostgresStore) UpsertChannel(ctx context.Context, channel *domain.Channel) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO channels (chat_id, username, title, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (chat_id) DO UPDATE SET username = EXCLUDED.username, title = EXCLUDED.title
	`, channel.ChatID, channel.Username, channel.Title, orNow(channel.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert channel: %w", err)
	}
	return nil
}

// GetChannel gets a channel by chat id
func (s *PostgresStore) GetChannel(ctx context.Context, chatID int64) (*domain.Channel, error) {
	var ch domain.Channel
	err := s.pool.QueryRow(ctx, `
		SELECT chat_id, username, title, created_at FROM channels WHERE chat_id = $1
	`, chatID).Scan(&ch.ChatID, &ch.Username, &ch.Title, &ch.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query channel: %w", err)
	}
	return &ch, nil
}

// SaveComment inserts the comment and its media in one transaction
func (s *PostgresStore) SaveComment(ctx context.Context, comment *domain.Comment) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO comments (channel_chat_id, post_id, user_id, text, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, comment.ChannelID, comment.PostID, comment.UserID, comment.Text, orNow(comment.CreatedAt)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert comment: %w", err)
	}

	for i := range comment.Media {
		m := &comment.Media[i]
		err := tx.QueryRow(ctx, `
			INSERT INTO comment_media (comment_id, media_type, file_id, file_unique_id, media_group_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, id, string(m.MediaType), m.FileID, m.UniqueID, m.GroupID, orNow(m.CreatedAt)).Scan(&m.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert comment media: %w", err)
		}
		m.CommentID = id
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit comment: %w", err)
	}
	comment.ID = id
	return id, nil
}

// ListComments lists the latest comments on a post, newest first
func (s *PostgresStore) ListComments(ctx context.Context, channelID int64, postID int, limit int) ([]*domain.Comment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, channel_chat_id, post_id, user_id, text, created_at
		FROM comments
		WHERE channel_chat_id = $1 AND post_id = $2
		ORDER BY id DESC
		LIMIT $3
	`, channelID, postID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}

	var comments []*domain.Comment
	byID := make(map[int64]*domain.Comment)
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.ChannelID, &c.PostID, &c.UserID, &c.Text, &c.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, &c)
		byID[c.ID] = &c
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return comments, nil
	}

	ids := make([]int64, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.ID)
	}

	mediaRows, err := s.pool.Query(ctx, `
		SELECT id, comment_id, media_type, file_id, file_unique_id, media_group_id, created_at
		FROM comment_media
		WHERE comment_id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query comment media: %w", err)
	}
	defer mediaRows.Close()

	for mediaRows.Next() {
		var m domain.CommentMedia
		var kind string
		if err := mediaRows.Scan(&m.ID, &m.CommentID, &kind, &m.FileID, &m.UniqueID, &m.GroupID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment media: %w", err)
		}
		m.MediaType = domain.MediaKind(kind)
		if c, ok := byID[m.CommentID]; ok {
			c.Media = append(c.Media, m)
		}
	}
	return comments, mediaRows.Err()
}

// GetOrCreate gets the user's rate limit record, creating it when absent
func (s *PostgresStore) GetOrCreate(ctx context.Context, userID int64, now time.Time) (*domain.RateLimit, error) {
	var rl domain.RateLimit
	var lastHit *time.Time
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rate_limits (user_id, hour_bucket_start, hour_count)
		VALUES ($1, $2, 0)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING user_id, last_hit_at, hour_bucket_start, hour_count
	`, userID, now).Scan(&rl.UserID, &lastHit, &rl.HourBucketStart, &rl.HourCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limit: %w", err)
	}
	if lastHit != nil {
		rl.LastHitAt = *lastHit
	}
	return &rl, nil
}

// Save writes the rate limit record back
func (s *PostgresStore) Save(ctx context.Context, rl *domain.RateLimit) error {
	var lastHit *time.Time
	if !rl.LastHitAt.IsZero() {
		lastHit = &rl.LastHitAt
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rate_limits (user_id, last_hit_at, hour_bucket_start, hour_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			last_hit_at = EXCLUDED.last_hit_at,
			hour_bucket_start = EXCLUDED.hour_bucket_start,
			hour_count = EXCLUDED.hour_count
	`, rl.UserID, lastHit, rl.HourBucketStart, rl.HourCount)
	if err != nil {
		return fmt.Errorf("failed to save rate limit: %w", err)
	}
	return nil
}

// DeleteIdle removes records whose last hit and bucket start both precede the cutoff
func (s *PostgresStore) DeleteIdle(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM rate_limits
		WHERE (last_hit_at IS NULL OR last_hit_at < $1) AND hour_bucket_start < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete idle rate limits: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
