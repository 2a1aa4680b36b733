package repo

import (
	"context"
	"errors"

	"github.com/kvantora/comment-bridge/internal/biz/domain"
)

// ErrMediaForbidden is returned when the target chat refuses a media kind
// (voice or round-video messages disabled by the recipient)
var ErrMediaForbidden = errors.New("media kind forbidden in target chat")

// ChatInfo represents chat information
type ChatInfo struct {
	ChatID   int64
	Title    string
	Username string
}

// MessageRef points at a message that already exists on the platform
type MessageRef struct {
	ChatID int64
	MsgID  int
}

// MessageRepo is the messaging transport interface.
// All texts are HTML; replyTo is a message id in the target chat, 0 for none.
type MessageRepo interface {
	// SendText sends a text message and returns its id
	SendText(ctx context.Context, chatID int64, text string, replyTo int) (int, error)

	// SendMedia re-sends a file by its platform id with an optional caption
	SendMedia(ctx context.Context, chatID int64, media domain.Media, caption string, replyTo int) (int, error)

	// SendDocument sends any file as a generic document
	SendDocument(ctx context.Context, chatID int64, fileID, caption string, replyTo int) (int, error)

	// SendAlbum sends a media group; caption goes to the first item
	SendAlbum(ctx context.Context, chatID int64, items []domain.Media, caption string, replyTo int) error

	// CopyMessage copies a message verbatim. Returns ErrMediaForbidden (wrapped)
	// when the target refuses the media kind.
	CopyMessage(ctx context.Context, chatID int64, src MessageRef, replyTo int) (int, error)

	// SetCommentButton attaches the comment entry-point button to a channel post
	SetCommentButton(ctx context.Context, post domain.PostRef, label, url string) error

	// GetChatInfo gets chat information
	GetChatInfo(ctx context.Context, chatID int64) (*ChatInfo, error)
}
