package data

import (
	"context"
	"strings"

	"github.com/kvantora/comment-bridge/internal/biz/repo"
)

// Storage is a backend serving both the store and the rate limit repositories
type Storage interface {
	repo.StoreRepo
	repo.RateLimitRepo
}

// Repositories contains all repositories
type Repositories struct {
	Message   repo.MessageRepo
	Store     repo.StoreRepo
	RateLimit repo.RateLimitRepo
}

// NewRepositories creates all repositories on top of the given backend
func NewRepositories(messages repo.MessageRepo, storage Storage) *Repositories {
	return &Repositories{
		Message:   messages,
		Store:     storage,
		RateLimit: storage,
	}
}

// IsPostgresURL checks if the database URL selects the Postgres backend
func IsPostgresURL(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://")
}

// OpenStorage opens the backend selected by the URL scheme. Postgres URLs use the
// server backend; "sqlite://path" or a bare path use an embedded sqlite file.
func OpenStorage(ctx context.Context, databaseURL string) (Storage, error) {
	if IsPostgresURL(databaseURL) {
		return NewPostgresStore(ctx, databaseURL)
	}
	return NewSQLiteStore(strings.TrimPrefix(databaseURL, "sqlite://"))
}
