package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"github.com/kvantora/comment-bridge/internal/biz/domain"
	"github.com/kvantora/comment-bridge/internal/biz/usecase"
	"github.com/kvantora/comment-bridge/internal/service"
)

// replyDepth is how many ancestors are carried into a converted message
const replyDepth = 2

// seenTTL is how long a handled update id is remembered
const seenTTL = 5 * time.Minute

// handleTimeout bounds the work done for one update
const handleTimeout = time.Minute

// TelegramServer handles Telegram updates
type TelegramServer struct {
	bot     *tele.Bot
	relay   *usecase.RelayUsecase
	janitor *service.Janitor

	// Update deduplication cache
	seenMsgsMu sync.Mutex
	seenMsgs   map[string]time.Time // chatID:msgID -> timestamp

	// bot.Stop blocks unless the poller is running
	runMu   sync.Mutex
	polling bool
	stopped bool
}

// NewTelegramServer creates a new Telegram server and registers its handlers
func NewTelegramServer(bot *tele.Bot, relay *usecase.RelayUsecase, janitor *service.Janitor) *TelegramServer {
	s := &TelegramServer{
		bot:      bot,
		relay:    relay,
		janitor:  janitor,
		seenMsgs: make(map[string]time.Time),
	}
	s.register()
	return s
}

func (s *TelegramServer) register() {
	s.bot.Handle("/start", s.onStart)
	s.bot.Handle("/cancel", s.onCancel)

	for _, endpoint := range []string{
		tele.OnText,
		tele.OnPhoto,
		tele.OnVideo,
		tele.OnDocument,
		tele.OnAudio,
		tele.OnVoice,
		tele.OnVideoNote,
	} {
		s.bot.Handle(endpoint, s.onMessage)
	}

	s.bot.Handle(tele.OnChannelPost, s.onChannelPost)
}

// Start starts the janitor and blocks polling for updates until Stop
func (s *TelegramServer) Start() error {
	if s.janitor != nil {
		if err := s.janitor.Start(); err != nil {
			return err
		}
	}

	s.runMu.Lock()
	if s.stopped {
		s.runMu.Unlock()
		if s.janitor != nil {
			s.janitor.Stop()
		}
		return nil
	}
	s.polling = true
	s.runMu.Unlock()

	log.Info().Str("bot", s.bot.Me.Username).Msg("polling for updates")
	s.bot.Start()
	return nil
}

// Stop stops polling, the janitor and flushes buffered albums
func (s *TelegramServer) Stop() {
	s.runMu.Lock()
	polling := s.polling
	s.stopped = true
	s.runMu.Unlock()

	if polling {
		s.bot.Stop()
	}
	if s.janitor != nil {
		s.janitor.Stop()
	}
	s.relay.Shutdown()
}

func (s *TelegramServer) onStart(c tele.Context) error {
	if !isPrivate(c) {
		return nil
	}
	return s.handle(c, "start", func(ctx context.Context, msg *domain.Message) error {
		return s.relay.HandleStart(ctx, msg)
	})
}

func (s *TelegramServer) onCancel(c tele.Context) error {
	if !isPrivate(c) {
		return nil
	}
	return s.handle(c, "cancel", func(ctx context.Context, msg *domain.Message) error {
		return s.relay.HandleCancel(ctx, msg)
	})
}

func (s *TelegramServer) onMessage(c tele.Context) error {
	private := isPrivate(c)
	return s.handle(c, "message", func(ctx context.Context, msg *domain.Message) error {
		return s.relay.Dispatch(ctx, msg, private)
	})
}

func (s *TelegramServer) onChannelPost(c tele.Context) error {
	post := c.Message()
	if post == nil || post.Chat == nil || s.isMessageSeen(post.Chat.ID, post.ID) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	channel := &domain.Channel{
		ChatID:   post.Chat.ID,
		Username: post.Chat.Username,
		Title:    post.Chat.Title,
	}
	if err := s.relay.HandleChannelPost(ctx, channel, post.ID); err != nil {
		log.Error().Err(err).Int64("channel_id", channel.ChatID).Int("post_id", post.ID).Msg("channel post failed")
	}
	return nil
}

// handle converts the update, drops duplicates and runs fn with a traced logger
func (s *TelegramServer) handle(c tele.Context, kind string, fn func(context.Context, *domain.Message) error) error {
	m := c.Message()
	if m == nil || m.Chat == nil {
		return nil
	}
	if s.isMessageSeen(m.Chat.ID, m.ID) {
		log.Debug().Int64("chat_id", m.Chat.ID).Int("msg_id", m.ID).Msg("duplicate update ignored")
		return nil
	}

	msg := ToDomainMessage(m)
	logger := log.With().
		Str("trace", uuid.NewString()).
		Str("kind", kind).
		Int64("chat_id", msg.ChatID).
		Int64("user_id", msg.SenderID).
		Int("msg_id", msg.ID).
		Logger()

	ctx, cancel := context.WithTimeout(logger.WithContext(context.Background()), handleTimeout)
	defer cancel()

	logger.Debug().Str("media", string(msg.Kind())).Str("group_id", msg.AlbumID).Msg("update received")

	start := time.Now()
	if err := fn(ctx, msg); err != nil {
		logger.Error().Err(err).Msg("update failed")
		return nil
	}
	logger.Debug().Dur("took", time.Since(start)).Msg("update handled")
	return nil
}

func isPrivate(c tele.Context) bool {
	chat := c.Chat()
	return chat != nil && chat.Type == tele.ChatPrivate
}

// ToDomainMessage converts a platform message, carrying up to two reply ancestors
func ToDomainMessage(m *tele.Message) *domain.Message {
	return toDomainMessage(m, replyDepth)
}

func toDomainMessage(m *tele.Message, depth int) *domain.Message {
	if m == nil {
		return nil
	}

	msg := &domain.Message{
		ID:      m.ID,
		Text:    m.Text,
		Caption: m.Caption,
		AlbumID: m.AlbumID,
		Payload: m.Payload,
		Media:   mediaOf(m),
	}
	if m.Chat != nil {
		msg.ChatID = m.Chat.ID
	}
	if m.Sender != nil {
		msg.SenderID = m.Sender.ID
		msg.SenderUsername = m.Sender.Username
	}
	if depth > 0 {
		msg.ReplyTo = toDomainMessage(m.ReplyTo, depth-1)
	}
	return msg
}

func mediaOf(m *tele.Message) *domain.Media {
	switch {
	case m.Photo != nil:
		return media(domain.MediaPhoto, m.Photo.File)
	case m.Video != nil:
		return media(domain.MediaVideo, m.Video.File)
	case m.Document != nil:
		return media(domain.MediaDocument, m.Document.File)
	case m.Audio != nil:
		return media(domain.MediaAudio, m.Audio.File)
	case m.Voice != nil:
		return media(domain.MediaVoice, m.Voice.File)
	case m.VideoNote != nil:
		return media(domain.MediaVideoNote, m.VideoNote.File)
	}
	return nil
}

func media(kind domain.MediaKind, f tele.File) *domain.Media {
	return &domain.Media{Kind: kind, FileID: f.FileID, UniqueID: f.UniqueID}
}

// isMessageSeen records the update and reports whether it was already handled
func (s *TelegramServer) isMessageSeen(chatID int64, msgID int) bool {
	key := fmt.Sprintf("%d:%d", chatID, msgID)
	now := time.Now()

	s.seenMsgsMu.Lock()
	defer s.seenMsgsMu.Unlock()

	if _, exists := s.seenMsgs[key]; exists {
		return true
	}
	s.seenMsgs[key] = now

	// Clean up expired records when marking new ones
	cutoff := now.Add(-seenTTL)
	for id, ts := range s.seenMsgs {
		if ts.Before(cutoff) {
			delete(s.seenMsgs, id)
		}
	}
	return false
}

// NewBot creates a long-polling bot with HTML parse mode
func NewBot(token string, pollTimeout time.Duration) (*tele.Bot, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:     token,
		Poller:    &tele.LongPoller{Timeout: pollTimeout},
		ParseMode: tele.ModeHTML,
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("telegram handler error")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return bot, nil
}
