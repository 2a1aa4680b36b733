package data

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v3"

	"github.com/kvantora/comment-bridge/internal/biz/domain"
	"github.com/kvantora/comment-bridge/internal/biz/repo"
)

// Error descriptions returned when the recipient disabled voice or round-video messages
var forbiddenMediaErrors = []string{
	"VOICE_MESSAGES_FORBIDDEN",
	"VIDEO_MESSAGES_FORBIDDEN",
}

// TelegramAPI is the part of *tele.Bot the messenger uses
type TelegramAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	SendAlbum(to tele.Recipient, a tele.Album, opts ...interface{}) ([]tele.Message, error)
	Copy(to tele.Recipient, msg tele.Editable, opts ...interface{}) (*tele.Message, error)
	EditReplyMarkup(msg tele.Editable, markup *tele.ReplyMarkup) (*tele.Message, error)
	ChatByID(id int64) (*tele.Chat, error)
}

// telegramRepo implements the message repository on the Bot API
type telegramRepo struct {
	api     TelegramAPI
	limiter *rate.Limiter
}

// NewTelegramRepo creates a new Telegram repository. Every call waits on the limiter
// so bursts stay under the platform's flood limits.
func NewTelegramRepo(api TelegramAPI, limiter *rate.Limiter) repo.MessageRepo {
	return &telegramRepo{api: api, limiter: limiter}
}

func (r *telegramRepo) wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send throttle: %w", err)
	}
	return nil
}

func sendOptions(replyTo int) *tele.SendOptions {
	opts := &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		AllowWithoutReply:     true,
	}
	if replyTo > 0 {
		opts.ReplyTo = &tele.Message{ID: replyTo}
	}
	return opts
}

// SendText sends an HTML text message
func (r *telegramRepo) SendText(ctx context.Context, chatID int64, text string, replyTo int) (int, error) {
	if err := r.wait(ctx); err != nil {
		return 0, err
	}
	msg, err := r.api.Send(tele.ChatID(chatID), text, sendOptions(replyTo))
	if err != nil {
		return 0, fmt.Errorf("send text: %w", err)
	}
	return msg.ID, nil
}

// SendMedia re-sends a file by id with an HTML caption
func (r *telegramRepo) SendMedia(ctx context.Context, chatID int64, media domain.Media, caption string, replyTo int) (int, error) {
	what, err := toSendable(media, caption)
	if err != nil {
		return 0, err
	}
	if err := r.wait(ctx); err != nil {
		return 0, err
	}
	msg, err := r.api.Send(tele.ChatID(chatID), what, sendOptions(replyTo))
	if err != nil {
		return 0, fmt.Errorf("send %s: %w", media.Kind, wrapForbidden(err))
	}
	return msg.ID, nil
}

// SendDocument sends any file as a generic document
func (r *telegramRepo) SendDocument(ctx context.Context, chatID int64, fileID, caption string, replyTo int) (int, error) {
	if err := r.wait(ctx); err != nil {
		return 0, err
	}
	doc := &tele.Document{File: tele.File{FileID: fileID}, Caption: caption}
	msg, err := r.api.Send(tele.ChatID(chatID), doc, sendOptions(replyTo))
	if err != nil {
		return 0, fmt.Errorf("send document: %w", err)
	}
	return msg.ID, nil
}

// SendAlbum sends a media group with the caption on the first item
func (r *telegramRepo) SendAlbum(ctx context.Context, chatID int64, items []domain.Media, caption string, replyTo int) error {
	album := make(tele.Album, 0, len(items))
	for i, item := range items {
		c := ""
		if i == 0 {
			c = caption
		}
		input, err := toInputtable(item, c)
		if err != nil {
			return err
		}
		album = append(album, input)
	}
	if len(album) == 0 {
		return fmt.Errorf("send album: no items")
	}

	if err := r.wait(ctx); err != nil {
		return err
	}
	if _, err := r.api.SendAlbum(tele.ChatID(chatID), album, sendOptions(replyTo)); err != nil {
		return fmt.Errorf("send album: %w", err)
	}
	return nil
}

// CopyMessage copies a message verbatim
func (r *telegramRepo) CopyMessage(ctx context.Context, chatID int64, src repo.MessageRef, replyTo int) (int, error) {
	if err := r.wait(ctx); err != nil {
		return 0, err
	}
	stored := tele.StoredMessage{MessageID: strconv.Itoa(src.MsgID), ChatID: src.ChatID}
	msg, err := r.api.Copy(tele.ChatID(chatID), stored, sendOptions(replyTo))
	if err != nil {
		return 0, fmt.Errorf("copy message: %w", wrapForbidden(err))
	}
	return msg.ID, nil
}

// SetCommentButton attaches a single URL button to a channel post
func (r *telegramRepo) SetCommentButton(ctx context.Context, post domain.PostRef, label, url string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(markup.URL(label, url)))

	stored := tele.StoredMessage{MessageID: strconv.Itoa(post.PostID), ChatID: post.ChannelID}
	if _, err := r.api.EditReplyMarkup(stored, markup); err != nil {
		return fmt.Errorf("edit reply markup: %w", err)
	}
	return nil
}

// GetChatInfo gets chat information
func (r *telegramRepo) GetChatInfo(ctx context.Context, chatID int64) (*repo.ChatInfo, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	chat, err := r.api.ChatByID(chatID)
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return &repo.ChatInfo{
		ChatID:   chat.ID,
		Title:    chat.Title,
		Username: chat.Username,
	}, nil
}

func toSendable(media domain.Media, caption string) (interface{}, error) {
	file := tele.File{FileID: media.FileID}
	switch media.Kind {
	case domain.MediaPhoto:
		return &tele.Photo{File: file, Caption: caption}, nil
	case domain.MediaVideo:
		return &tele.Video{File: file, Caption: caption}, nil
	case domain.MediaDocument:
		return &tele.Document{File: file, Caption: caption}, nil
	case domain.MediaAudio:
		return &tele.Audio{File: file, Caption: caption}, nil
	case domain.MediaVoice:
		return &tele.Voice{File: file, Caption: caption}, nil
	case domain.MediaVideoNote:
		return &tele.VideoNote{File: file}, nil
	}
	return nil, fmt.Errorf("unsupported media kind %q", media.Kind)
}

func toInputtable(media domain.Media, caption string) (tele.Inputtable, error) {
	file := tele.File{FileID: media.FileID}
	switch media.Kind {
	case domain.MediaPhoto:
		return &tele.Photo{File: file, Caption: caption}, nil
	case domain.MediaVideo:
		return &tele.Video{File: file, Caption: caption}, nil
	case domain.MediaDocument:
		return &tele.Document{File: file, Caption: caption}, nil
	}
	return nil, fmt.Errorf("media kind %q cannot be part of an album", media.Kind)
}

// wrapForbidden maps the recipient's media privacy rejection onto repo.ErrMediaForbidden
func wrapForbidden(err error) error {
	text := err.Error()
	for _, marker := range forbiddenMediaErrors {
		if strings.Contains(text, marker) {
			return fmt.Errorf("%w: %v", repo.ErrMediaForbidden, err)
		}
	}
	return err
}
