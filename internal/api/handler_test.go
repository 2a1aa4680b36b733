package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvantora/comment-bridge/internal/biz/domain"
	"github.com/kvantora/comment-bridge/internal/biz/usecase"
)

// MockStoreRepo implements repo.StoreRepo for testing
type MockStoreRepo struct {
	comments  []*domain.Comment
	err       error
	lastLimit int
}

func (m *MockStoreRepo) UpsertUser(ctx context.Context, user *domain.User) error { return nil }

func (m *MockStoreRepo) UpsertChannel(ctx context.Context, channel *domain.Channel) error { return nil }

func (m *MockStoreRepo) GetChannel(ctx context.Context, chatID int64) (*domain.Channel, error) {
	return nil, nil
}

func (m *MockStoreRepo) SaveComment(ctx context.Context, comment *domain.Comment) (int64, error) {
	return 0, nil
}

func (m *MockStoreRepo) ListComments(ctx context.Context, channelID int64, postID int, limit int) ([]*domain.Comment, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	var out []*domain.Comment
	for _, c := range m.comments {
		if c.ChannelID == channelID && c.PostID == postID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockStoreRepo) Close() error { return nil }

func newTestServer(store *MockStoreRepo, selections *usecase.SelectionStore) http.Handler {
	if selections == nil {
		selections = usecase.NewSelectionStore()
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics"))
	})
	return NewServer(store, selections, metrics, "127.0.0.1:0").Router()
}

func TestHealth(t *testing.T) {
	h := newTestServer(&MockStoreRepo{}, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestMetricsMounted(t *testing.T) {
	h := newTestServer(&MockStoreRepo{}, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, "# metrics", w.Body.String())
}

func TestHandleComments(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &MockStoreRepo{comments: []*domain.Comment{
		{ID: 2, ChannelID: -100123, PostID: 55, UserID: 42, Text: "trip", CreatedAt: created,
			Media: []domain.CommentMedia{{MediaType: domain.MediaPhoto, FileID: "p1", GroupID: "g"}}},
		{ID: 1, ChannelID: -100123, PostID: 55, UserID: 42, Text: "first", CreatedAt: created},
		{ID: 3, ChannelID: -100123, PostID: 56, UserID: 7, Text: "other", CreatedAt: created},
	}}
	h := newTestServer(store, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/comments?channel_id=-100123&post_id=55", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultCommentLimit, store.lastLimit)

	var result map[string][]Comment
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	comments := result["comments"]
	require.Len(t, comments, 2)
	assert.Equal(t, int64(2), comments[0].ID)
	assert.Equal(t, "2026-03-01T10:00:00Z", comments[0].CreatedAt)
	assert.Equal(t, []Media{{Type: "photo", FileID: "p1", GroupID: "g"}}, comments[0].Media)
	assert.Empty(t, comments[1].Media)
}

func TestHandleComments_LimitClamped(t *testing.T) {
	store := &MockStoreRepo{}
	h := newTestServer(store, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/comments?channel_id=-1&post_id=1&limit=100000", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxCommentLimit, store.lastLimit)
}

func TestHandleComments_BadRequest(t *testing.T) {
	h := newTestServer(&MockStoreRepo{}, nil)

	for _, query := range []string{
		"",
		"?channel_id=abc&post_id=1",
		"?channel_id=-1",
		"?channel_id=-1&post_id=1&limit=0",
	} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/comments"+query, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, "query %q", query)
	}
}

func TestHandleComments_StoreError(t *testing.T) {
	h := newTestServer(&MockStoreRepo{err: errors.New("db down")}, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/comments?channel_id=-1&post_id=1", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db down")
}

func TestHandleSelections(t *testing.T) {
	selections := usecase.NewSelectionStore()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	selections.Set(42, domain.PostRef{ChannelID: -100123, PostID: 55}, at)
	selections.Set(7, domain.PostRef{ChannelID: -100123, PostID: 56}, at)
	h := newTestServer(&MockStoreRepo{}, selections)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/selections", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var result struct {
		Count      int         `json:"count"`
		Selections []Selection `json:"selections"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Equal(t, 2, result.Count)
	assert.Equal(t, []Selection{
		{UserID: 7, ChannelID: -100123, PostID: 56, SelectedAt: "2026-03-01T10:00:00Z"},
		{UserID: 42, ChannelID: -100123, PostID: 55, SelectedAt: "2026-03-01T10:00:00Z"},
	}, result.Selections)
}

func TestUnknownRoute(t *testing.T) {
	h := newTestServer(&MockStoreRepo{}, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/comments", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
