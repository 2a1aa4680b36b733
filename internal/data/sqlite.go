package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kvantora/comment-bridge/internal/biz/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the store and rate limit repositories on an embedded sqlite file
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database file and creates the schema
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; sqlite serializes writes anyway
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

var sqliteSchema = []string{
	`PRAGMA foreign_keys = ON`,
	`CREATE TABLE IF NOT EXISTS users (
		tg_id INTEGER PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS channels (
		chat_id INTEGER PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_chat_id INTEGER NOT NULL,
		post_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(channel_chat_id, post_id)`,
	`CREATE TABLE IF NOT EXISTS comment_media (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		comment_id INTEGER NOT NULL REFERENCES comments(id) ON DELETE CASCADE,
		media_type TEXT NOT NULL,
		file_id TEXT NOT NULL,
		file_unique_id TEXT NOT NULL DEFAULT '',
		media_group_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_comment_media_comment ON comment_media(comment_id)`,
	`CREATE TABLE IF NOT EXISTS rate_limits (
		user_id INTEGER PRIMARY KEY,
		last_hit_at INTEGER NOT NULL DEFAULT 0,
		hour_bucket_start INTEGER NOT NULL,
		hour_count INTEGER NOT NULL DEFAULT 0
	)`,
}

// UpsertUser creates the user or refreshes the username
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (tg_id, username, created_at) VALUES (?, ?, ?)
		ON CONFLICT(tg_id) DO UPDATE SET username = excluded.username
	`, user.TgID, user.Username, toMillis(user.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// UpsertChannel creates the channel or refreshes username and title
func (s *SQLiteStore) UpsertChannel(ctx context.Context, channel *domain.Channel) error {
	createdAt := channel.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (chat_id, username, title, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET username = excluded.username, title = excluded.title
	`, channel.ChatID, channel.Username, channel.Title, toMillis(createdAt))
	if err != nil {
		return fmt.Errorf("failed to upsert channel: %w", err)
	}
	return nil
}

// GetChannel gets a channel by chat id
func (s *SQLiteStore) GetChannel(ctx context.Context, chatID int64) (*domain.Channel, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT chat_id, username, title, created_at FROM channels WHERE chat_id = ?
	`, chatID)

	var ch domain.Channel
	var createdAt int64
	err := row.Scan(&ch.ChatID, &ch.Username, &ch.Title, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query channel: %w", err)
	}
	ch.CreatedAt = fromMillis(createdAt)
	return &ch, nil
}

// SaveComment inserts the comment and its media in one transaction
func (s *SQLiteStore) SaveComment(ctx context.Context, comment *domain.Comment) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO comments (channel_chat_id, post_id, user_id, text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, comment.ChannelID, comment.PostID, comment.UserID, comment.Text, toMillis(comment.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert comment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get comment id: %w", err)
	}

	for i := range comment.Media {
		m := &comment.Media[i]
		res, err := tx.ExecContext(ctx, `
			INSERT INTO comment_media (comment_id, media_type, file_id, file_unique_id, media_group_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, string(m.MediaType), m.FileID, m.UniqueID, m.GroupID, toMillis(m.CreatedAt))
		if err != nil {
			return 0, fmt.Errorf("failed to insert comment media: %w", err)
		}
		m.CommentID = id
		if m.ID, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("failed to get media id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit comment: %w", err)
	}
	comment.ID = id
	return id, nil
}

// ListComments lists the latest comments on a post, newest first
func (s *SQLiteStore) ListComments(ctx context.Context, channelID int64, postID int, limit int) ([]*domain.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_chat_id, post_id, user_id, text, created_at
		FROM comments
		WHERE channel_chat_id = ? AND post_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, channelID, postID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	var comments []*domain.Comment
	for rows.Next() {
		var c domain.Comment
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.ChannelID, &c.PostID, &c.UserID, &c.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		c.CreatedAt = fromMillis(createdAt)
		comments = append(comments, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range comments {
		media, err := s.listMedia(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		c.Media = media
	}
	return comments, nil
}

func (s *SQLiteStore) listMedia(ctx context.Context, commentID int64) ([]domain.CommentMedia, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, comment_id, media_type, file_id, file_unique_id, media_group_id, created_at
		FROM comment_media
		WHERE comment_id = ?
		ORDER BY id
	`, commentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comment media: %w", err)
	}
	defer rows.Close()

	var media []domain.CommentMedia
	for rows.Next() {
		var m domain.CommentMedia
		var kind string
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.CommentID, &kind, &m.FileID, &m.UniqueID, &m.GroupID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment media: %w", err)
		}
		m.MediaType = domain.MediaKind(kind)
		m.CreatedAt = fromMillis(createdAt)
		media = append(media, m)
	}
	return media, rows.Err()
}

// GetOrCreate gets the user's rate limit record, creating it when absent
func (s *SQLiteStore) GetOrCreate(ctx context.Context, userID int64, now time.Time) (*domain.RateLimit, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_limits (user_id, last_hit_at, hour_bucket_start, hour_count)
		VALUES (?, 0, ?, 0)
		ON CONFLICT(user_id) DO NOTHING
	`, userID, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, last_hit_at, hour_bucket_start, hour_count FROM rate_limits WHERE user_id = ?
	`, userID)

	var rl domain.RateLimit
	var lastHit, bucket int64
	if err := row.Scan(&rl.UserID, &lastHit, &bucket, &rl.HourCount); err != nil {
		return nil, fmt.Errorf("failed to query rate limit: %w", err)
	}
	rl.LastHitAt = fromMillis(lastHit)
	rl.HourBucketStart = fromMillis(bucket)
	return &rl, nil
}

// Save writes the rate limit record back
func (s *SQLiteStore) Save(ctx context.Context, rl *domain.RateLimit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO rate_limits (user_id, last_hit_at, hour_bucket_start, hour_count)
		VALUES (?, ?, ?, ?)
	`, rl.UserID, toMillis(rl.LastHitAt), toMillis(rl.HourBucketStart), rl.HourCount)
	if err != nil {
		return fmt.Errorf("failed to save rate limit: %w", err)
	}
	return nil
}

// DeleteIdle removes records whose last hit and bucket start both precede the cutoff
func (s *SQLiteStore) DeleteIdle(ctx context.Context, before time.Time) (int64, error) {
	cutoff := toMillis(before)
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM rate_limits WHERE last_hit_at < ? AND hour_bucket_start < ?
	`, cutoff, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete idle rate limits: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// toMillis maps the zero time to 0 so it round-trips through fromMillis
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
