package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kvantora/comment-bridge/internal/biz/domain"
	"github.com/kvantora/comment-bridge/internal/biz/repo"
)

// Mock implementations

type sentMessage struct {
	Op      string // text, media, document, album, copy
	ChatID  int64
	Text    string
	Media   []domain.Media
	Src     repo.MessageRef
	ReplyTo int
	ID      int
}

type mockMessageRepo struct {
	mu       sync.Mutex
	nextID   int
	sent     []sentMessage
	buttons  map[domain.PostRef]string
	chats    map[int64]*repo.ChatInfo
	copyErr  error
	mediaErr error
	albumErr error

	// textErr fails SendText to textErrChat only
	textErr     error
	textErrChat int64
}

func newMockMessageRepo() *mockMessageRepo {
	return &mockMessageRepo{
		nextID:  1000,
		buttons: make(map[domain.PostRef]string),
		chats:   make(map[int64]*repo.ChatInfo),
	}
}

func (m *mockMessageRepo) record(s sentMessage) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	m.sent = append(m.sent, s)
	return s.ID
}

func (m *mockMessageRepo) SendText(ctx context.Context, chatID int64, text string, replyTo int) (int, error) {
	if m.textErr != nil && chatID == m.textErrChat {
		return 0, m.textErr
	}
	return m.record(sentMessage{Op: "text", ChatID: chatID, Text: text, ReplyTo: replyTo}), nil
}

func (m *mockMessageRepo) SendMedia(ctx context.Context, chatID int64, media domain.Media, caption string, replyTo int) (int, error) {
	if m.mediaErr != nil {
		return 0, m.mediaErr
	}
	return m.record(sentMessage{Op: "media", ChatID: chatID, Text: caption, Media: []domain.Media{media}, ReplyTo: replyTo}), nil
}

func (m *mockMessageRepo) SendDocument(ctx context.Context, chatID int64, fileID, caption string, replyTo int) (int, error) {
	media := domain.Media{Kind: domain.MediaDocument, FileID: fileID}
	return m.record(sentMessage{Op: "document", ChatID: chatID, Text: caption, Media: []domain.Media{media}, ReplyTo: replyTo}), nil
}

func (m *mockMessageRepo) SendAlbum(ctx context.Context, chatID int64, items []domain.Media, caption string, replyTo int) error {
	if m.albumErr != nil {
		return m.albumErr
	}
	m.record(sentMessage{Op: "album", ChatID: chatID, Text: caption, Media: items, ReplyTo: replyTo})
	return nil
}

func (m *mockMessageRepo) CopyMessage(ctx context.Context, chatID int64, src repo.MessageRef, replyTo int) (int, error) {
	if m.copyErr != nil {
		return 0, m.copyErr
	}
	return m.record(sentMessage{Op: "copy", ChatID: chatID, Src: src, ReplyTo: replyTo}), nil
}

func (m *mockMessageRepo) SetCommentButton(ctx context.Context, post domain.PostRef, label, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buttons[post] = url
	return nil
}

func (m *mockMessageRepo) GetChatInfo(ctx context.Context, chatID int64) (*repo.ChatInfo, error) {
	if info, ok := m.chats[chatID]; ok {
		return info, nil
	}
	return nil, context.DeadlineExceeded
}

// sentTo returns the messages delivered to a chat in order
func (m *mockMessageRepo) sentTo(chatID int64) []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMessage
	for _, s := range m.sent {
		if s.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

type mockStoreRepo struct {
	mu       sync.Mutex
	users    map[int64]*domain.User
	channels map[int64]*domain.Channel
	comments []*domain.Comment
	saveErr  error
}

func newMockStoreRepo() *mockStoreRepo {
	return &mockStoreRepo{
		users:    make(map[int64]*domain.User),
		channels: make(map[int64]*domain.Channel),
	}
}

func (m *mockStoreRepo) UpsertUser(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.TgID] = user
	return nil
}

func (m *mockStoreRepo) UpsertChannel(ctx context.Context, channel *domain.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[channel.ChatID] = channel
	return nil
}

func (m *mockStoreRepo) GetChannel(ctx context.Context, chatID int64) (*domain.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channels[chatID], nil
}

func (m *mockStoreRepo) SaveComment(ctx context.Context, comment *domain.Comment) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return 0, m.saveErr
	}
	comment.ID = int64(len(m.comments) + 1)
	m.comments = append(m.comments, comment)
	return comment.ID, nil
}

func (m *mockStoreRepo) ListComments(ctx context.Context, channelID int64, postID int, limit int) ([]*domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Comment
	for _, c := range m.comments {
		if c.ChannelID == channelID && c.PostID == postID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStoreRepo) Close() error { return nil }

func (m *mockStoreRepo) commentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.comments)
}

// mockRateLimitRepo hands out copies so callers see the same isolation a database gives
type mockRateLimitRepo struct {
	mu      sync.Mutex
	records map[int64]domain.RateLimit
	gets    int
	cutoff  time.Time
}

func newMockRateLimitRepo() *mockRateLimitRepo {
	return &mockRateLimitRepo{records: make(map[int64]domain.RateLimit)}
}

func (m *mockRateLimitRepo) GetOrCreate(ctx context.Context, userID int64, now time.Time) (*domain.RateLimit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	rl, ok := m.records[userID]
	if !ok {
		rl = *domain.NewRateLimit(userID, now)
		m.records[userID] = rl
	}
	return &rl, nil
}

func (m *mockRateLimitRepo) Save(ctx context.Context, rl *domain.RateLimit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rl.UserID] = *rl
	return nil
}

func (m *mockRateLimitRepo) DeleteIdle(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoff = before
	var n int64
	for id, rl := range m.records {
		if rl.LastHitAt.Before(before) && rl.HourBucketStart.Before(before) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

func (m *mockRateLimitRepo) getCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}
