package usecase

import (
	"context"
	"errors"
	"fmt"
	"html"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kvantora/comment-bridge/internal/biz/domain"
	"github.com/kvantora/comment-bridge/internal/biz/repo"
	"github.com/kvantora/comment-bridge/internal/metrics"
)

// RelayConfig contains router configuration
type RelayConfig struct {
	AdminChatID     int64
	BotUsername     string
	AllowedChannels []int64
	AlbumWindow     time.Duration
	AnchorDelay     time.Duration // Pause between a verbatim copy and its header
	FlushTimeout    time.Duration // Budget for persisting and sending one album
}

// DefaultRelayConfig returns default router configuration
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		AlbumWindow:  DefaultAlbumWindow,
		AnchorDelay:  300 * time.Millisecond,
		FlushTimeout: 30 * time.Second,
	}
}

// RelayUsecase routes messages between readers and the channel admin
type RelayUsecase struct {
	cfg        RelayConfig
	texts      Texts
	store      repo.StoreRepo
	messages   repo.MessageRepo
	limiter    *RateLimiterUsecase
	selections *SelectionStore
	albums     *AlbumAggregator
	metrics    metrics.MetricsCollector
	locks      *keyedMutex

	now   func() time.Time
	sleep func(time.Duration)
}

// NewRelayUsecase creates a new relay usecase
func NewRelayUsecase(
	cfg RelayConfig,
	texts Texts,
	store repo.StoreRepo,
	messages repo.MessageRepo,
	limiter *RateLimiterUsecase,
	selections *SelectionStore,
	collector metrics.MetricsCollector,
) *RelayUsecase {
	if collector == nil {
		collector = metrics.Nop{}
	}
	uc := &RelayUsecase{
		cfg:        cfg,
		texts:      texts,
		store:      store,
		messages:   messages,
		limiter:    limiter,
		selections: selections,
		metrics:    collector,
		locks:      newKeyedMutex(),
		now:        time.Now,
		sleep:      time.Sleep,
	}
	uc.albums = NewAlbumAggregator(cfg.AlbumWindow, uc.flushAlbum)
	return uc
}

// Selections exposes the pending selection store
func (uc *RelayUsecase) Selections() *SelectionStore {
	return uc.selections
}

// IsAllowedChannel checks if the bot serves the channel
func (uc *RelayUsecase) IsAllowedChannel(chatID int64) bool {
	return slices.Contains(uc.cfg.AllowedChannels, chatID)
}

// Dispatch routes an inbound message by chat. Admin chat messages that reply to
// something, or continue an admin album, take the admin path; other private
// messages take the user path; anything else is ignored.
func (uc *RelayUsecase) Dispatch(ctx context.Context, msg *domain.Message, private bool) error {
	if msg.ChatID == uc.cfg.AdminChatID {
		if msg.ReplyTo != nil || (msg.AlbumID != "" && uc.albums.Has(msg.AlbumID)) {
			return uc.HandleAdminMessage(ctx, msg)
		}
	}
	if !private {
		return nil
	}
	return uc.HandleUserMessage(ctx, msg)
}

// HandleStart handles /start with or without a post payload
func (uc *RelayUsecase) HandleStart(ctx context.Context, msg *domain.Message) error {
	unlock := uc.locks.Lock(msg.SenderID)
	defer unlock()

	payload := strings.TrimSpace(msg.Payload)
	if payload == "" {
		return uc.reply(ctx, msg.ChatID, uc.introText(ctx))
	}

	post, err := domain.ParseStartPayload(payload)
	if err != nil || !uc.servesChannel(post.ChannelID) {
		log.Debug().Str("payload", payload).Int64("user_id", msg.SenderID).Msg("rejected start payload")
		return uc.reply(ctx, msg.ChatID, uc.texts.InvalidLink)
	}

	uc.selections.Set(msg.SenderID, post, uc.now())
	if err := uc.upsertUser(ctx, msg); err != nil {
		return err
	}

	name := uc.channelName(ctx, post.ChannelID)
	return uc.reply(ctx, msg.ChatID, WithChannel(uc.texts.CommentPrompt, name))
}

// HandleCancel drops the pending selection
func (uc *RelayUsecase) HandleCancel(ctx context.Context, msg *domain.Message) error {
	unlock := uc.locks.Lock(msg.SenderID)
	defer unlock()

	uc.selections.Clear(msg.SenderID)
	return uc.reply(ctx, msg.ChatID, uc.texts.Cancelled)
}

// HandleUserMessage handles a message from a reader in a private chat
func (uc *RelayUsecase) HandleUserMessage(ctx context.Context, msg *domain.Message) error {
	unlock := uc.locks.Lock(msg.SenderID)
	defer unlock()

	// Later parts of an album already admitted or rejected
	if msg.IsAlbumPart() && uc.albums.Join(msg.AlbumID, msg) {
		return nil
	}

	if msg.Media == nil && strings.TrimSpace(msg.Text) == "" {
		return uc.reply(ctx, msg.ChatID, uc.texts.EmptyComment)
	}

	if conv, ok := domain.ResolveFromReplyChain(msg); ok {
		return uc.relayUserReply(ctx, msg, conv)
	}
	return uc.relayNewComment(ctx, msg)
}

// HandleAdminMessage handles an admin message replying to a bot notification
func (uc *RelayUsecase) HandleAdminMessage(ctx context.Context, msg *domain.Message) error {
	unlock := uc.locks.Lock(uc.cfg.AdminChatID)
	defer unlock()

	if msg.IsAlbumPart() && uc.albums.Join(msg.AlbumID, msg) {
		return nil
	}

	parsed, ok := domain.ResolveFromReplyChain(msg)
	if !ok {
		uc.metrics.RecordUnresolved(string(domain.DirectionAdminReply))
		if _, err := uc.messages.SendText(ctx, msg.ChatID, uc.texts.UnknownRecipient, msg.ID); err != nil {
			uc.metrics.RecordSendFailure("notice")
			return fmt.Errorf("send unknown recipient notice: %w", err)
		}
		return nil
	}

	conv := domain.ConversationContext{
		UserID:         parsed.UserID,
		ChannelID:      parsed.ChannelID,
		PostID:         parsed.PostID,
		AdminMessageID: msg.ID,
	}
	rc := domain.RelayContext{
		Direction:    domain.DirectionAdminReply,
		Conversation: conv,
		TargetChatID: parsed.UserID,
		PostLink:     uc.postLink(ctx, conv.Post()),
	}

	if msg.IsAlbumPart() {
		uc.albums.OnItem(msg.AlbumID, msg, rc)
		return nil
	}

	if err := uc.relaySingle(ctx, msg, rc); err != nil {
		uc.notifyFailure(ctx, msg.ChatID, msg.ID)
		return err
	}
	uc.metrics.RecordRelay(string(rc.Direction))
	return nil
}

// HandleChannelPost registers the channel and attaches the comment button to the post
func (uc *RelayUsecase) HandleChannelPost(ctx context.Context, channel *domain.Channel, postID int) error {
	if !uc.IsAllowedChannel(channel.ChatID) {
		return nil
	}

	if err := uc.store.UpsertChannel(ctx, channel); err != nil {
		return fmt.Errorf("upsert channel: %w", err)
	}

	post := domain.PostRef{ChannelID: channel.ChatID, PostID: postID}
	if err := uc.messages.SetCommentButton(ctx, post, uc.texts.CommentButton, post.DeepLink(uc.cfg.BotUsername)); err != nil {
		uc.metrics.RecordSendFailure("comment_button")
		log.Warn().Err(err).Int64("channel_id", post.ChannelID).Int("post_id", postID).Msg("failed to attach comment button")
	}
	return nil
}

// Shutdown flushes buffered albums
func (uc *RelayUsecase) Shutdown() {
	uc.albums.FlushAll()
}

func (uc *RelayUsecase) relayUserReply(ctx context.Context, msg *domain.Message, parsed domain.ConversationContext) error {
	conv := domain.ConversationContext{
		UserID:    msg.SenderID,
		ChannelID: parsed.ChannelID,
		PostID:    parsed.PostID,
	}
	rc := domain.RelayContext{
		Direction:    domain.DirectionUserReply,
		Conversation: conv,
		TargetChatID: uc.cfg.AdminChatID,
		ReplyTo:      parsed.AdminMessageID,
		SenderLabel:  msg.SenderLabel(),
		PostLink:     uc.postLink(ctx, conv.Post()),
	}

	if msg.IsAlbumPart() {
		uc.albums.OnItem(msg.AlbumID, msg, rc)
		return nil
	}

	if err := uc.relaySingle(ctx, msg, rc); err != nil {
		uc.notifyFailure(ctx, msg.ChatID, 0)
		return err
	}
	uc.metrics.RecordRelay(string(rc.Direction))
	return uc.reply(ctx, msg.ChatID, uc.texts.ReplySent)
}

func (uc *RelayUsecase) relayNewComment(ctx context.Context, msg *domain.Message) error {
	post, ok := uc.selections.Get(msg.SenderID)
	if !ok {
		return uc.reply(ctx, msg.ChatID, uc.texts.SelectPostFirst)
	}

	admitted, remaining, err := uc.limiter.CheckAndAdmit(ctx, msg.SenderID, uc.now())
	if err != nil {
		return fmt.Errorf("check rate limit: %w", err)
	}
	if !admitted {
		uc.metrics.RecordRateLimited()
		log.Info().Int64("user_id", msg.SenderID).Int("remaining", remaining).Msg("comment rate limited")
		if msg.IsAlbumPart() {
			// Swallow the remaining parts without answering again
			uc.albums.OnItem(msg.AlbumID, msg, domain.RelayContext{Direction: domain.DirectionNewComment, Dropped: true})
		}
		return uc.reply(ctx, msg.ChatID, uc.texts.RateLimited)
	}

	if err := uc.upsertUser(ctx, msg); err != nil {
		return err
	}

	conv := domain.ConversationContext{
		UserID:    msg.SenderID,
		ChannelID: post.ChannelID,
		PostID:    post.PostID,
	}
	rc := domain.RelayContext{
		Direction:    domain.DirectionNewComment,
		Conversation: conv,
		TargetChatID: uc.cfg.AdminChatID,
		SenderLabel:  msg.SenderLabel(),
		PostLink:     uc.postLink(ctx, post),
	}

	if msg.IsAlbumPart() {
		uc.selections.Clear(msg.SenderID)
		uc.albums.OnItem(msg.AlbumID, msg, rc)
		return nil
	}

	if err := uc.saveComment(ctx, conv, strings.TrimSpace(msg.Body()), []*domain.Message{msg}); err != nil {
		return err
	}
	if err := uc.relaySingle(ctx, msg, rc); err != nil {
		// The comment row exists, a retry needs a fresh selection
		uc.selections.Clear(msg.SenderID)
		uc.notifyFailure(ctx, msg.ChatID, 0)
		return err
	}
	uc.selections.Clear(msg.SenderID)
	uc.metrics.RecordRelay(string(rc.Direction))
	return uc.reply(ctx, msg.ChatID, uc.texts.CommentSent)
}

// relaySingle delivers one message with its header. Kinds that accept a caption carry
// the header as caption; the rest are copied verbatim and followed by the header as an
// anchor the recipient can reply to.
func (uc *RelayUsecase) relaySingle(ctx context.Context, msg *domain.Message, rc domain.RelayContext) error {
	header := uc.texts.HeaderFor(rc, msg.Body())

	var err error
	switch {
	case msg.Media == nil:
		_, err = uc.messages.SendText(ctx, rc.TargetChatID, header, rc.ReplyTo)
	case msg.Media.Kind.CaptionCapable():
		if _, err = uc.messages.SendMedia(ctx, rc.TargetChatID, *msg.Media, header, rc.ReplyTo); err != nil {
			log.Warn().Err(err).Str("kind", string(msg.Media.Kind)).Msg("send with caption failed, copying instead")
			err = uc.copyWithAnchor(ctx, msg, rc, header)
		}
	default:
		err = uc.copyWithAnchor(ctx, msg, rc, header)
	}

	if err != nil {
		uc.metrics.RecordSendFailure("relay")
		return fmt.Errorf("relay %s message: %w", msg.Kind(), err)
	}
	return nil
}

func (uc *RelayUsecase) copyWithAnchor(ctx context.Context, msg *domain.Message, rc domain.RelayContext, header string) error {
	if _, err := uc.copyOrDegrade(ctx, msg, rc.TargetChatID, rc.ReplyTo); err != nil {
		return err
	}
	uc.sleep(uc.cfg.AnchorDelay)
	_, err := uc.messages.SendText(ctx, rc.TargetChatID, header, rc.ReplyTo)
	return err
}

// copyOrDegrade copies the message and re-sends it as a document when the target
// refuses the media kind
func (uc *RelayUsecase) copyOrDegrade(ctx context.Context, msg *domain.Message, chatID int64, replyTo int) (int, error) {
	id, err := uc.messages.CopyMessage(ctx, chatID, repo.MessageRef{ChatID: msg.ChatID, MsgID: msg.ID}, replyTo)
	if err == nil || !errors.Is(err, repo.ErrMediaForbidden) || msg.Media == nil {
		return id, err
	}

	log.Info().Int64("chat_id", chatID).Str("kind", string(msg.Media.Kind)).Msg("media kind forbidden, sending as document")
	return uc.messages.SendDocument(ctx, chatID, msg.Media.FileID, html.EscapeString(msg.TrimmedCaption()), replyTo)
}

// flushAlbum delivers a complete album. New comments are persisted first, once per album.
func (uc *RelayUsecase) flushAlbum(group *domain.AlbumGroup) {
	rc := group.Context
	if rc.Dropped {
		log.Debug().Str("group_id", group.GroupID).Int("items", len(group.Items)).Msg("discarded rejected album")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), uc.cfg.FlushTimeout)
	defer cancel()

	caption := group.Caption()
	if rc.Direction == domain.DirectionNewComment {
		if err := uc.saveComment(ctx, rc.Conversation, caption, group.Items); err != nil {
			log.Error().Err(err).Str("group_id", group.GroupID).Msg("failed to persist album comment")
			return
		}
	}

	header := uc.texts.HeaderFor(rc, caption)
	media := make([]domain.Media, 0, len(group.Items))
	for _, item := range group.Items {
		if item.Media != nil {
			media = append(media, *item.Media)
		}
	}

	if err := uc.messages.SendAlbum(ctx, rc.TargetChatID, media, header, rc.ReplyTo); err != nil {
		uc.metrics.RecordSendFailure("album")
		log.Warn().Err(err).Str("group_id", group.GroupID).Msg("album send failed, copying items")

		for _, item := range group.Items {
			if _, err := uc.copyOrDegrade(ctx, item, rc.TargetChatID, rc.ReplyTo); err != nil {
				log.Warn().Err(err).Int("msg_id", item.ID).Msg("failed to copy album item")
			}
		}
		if _, err := uc.messages.SendText(ctx, rc.TargetChatID, header, rc.ReplyTo); err != nil {
			uc.metrics.RecordSendFailure("relay")
			log.Error().Err(err).Str("group_id", group.GroupID).Msg("failed to send album header")
			return
		}
	}

	uc.metrics.RecordAlbumFlush(len(group.Items))
	uc.metrics.RecordRelay(string(rc.Direction))

	switch rc.Direction {
	case domain.DirectionNewComment:
		_ = uc.reply(ctx, rc.Conversation.UserID, uc.texts.CommentSent)
	case domain.DirectionUserReply:
		_ = uc.reply(ctx, rc.Conversation.UserID, uc.texts.ReplySent)
	}
}

func (uc *RelayUsecase) saveComment(ctx context.Context, conv domain.ConversationContext, text string, items []*domain.Message) error {
	now := uc.now()
	comment := &domain.Comment{
		ChannelID: conv.ChannelID,
		PostID:    conv.PostID,
		UserID:    conv.UserID,
		Text:      text,
		CreatedAt: now,
	}
	for _, item := range items {
		if rec, ok := domain.MediaRecord(item); ok {
			rec.CreatedAt = now
			comment.Media = append(comment.Media, rec)
		}
	}

	id, err := uc.store.SaveComment(ctx, comment)
	if err != nil {
		return fmt.Errorf("save comment: %w", err)
	}
	uc.metrics.RecordCommentSaved(len(comment.Media))
	log.Info().
		Int64("comment_id", id).
		Int64("channel_id", conv.ChannelID).
		Int("post_id", conv.PostID).
		Int("media", len(comment.Media)).
		Msg("comment saved")
	return nil
}

func (uc *RelayUsecase) upsertUser(ctx context.Context, msg *domain.Message) error {
	user := &domain.User{TgID: msg.SenderID, Username: msg.SenderUsername, CreatedAt: uc.now()}
	if err := uc.store.UpsertUser(ctx, user); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (uc *RelayUsecase) reply(ctx context.Context, chatID int64, text string) error {
	if _, err := uc.messages.SendText(ctx, chatID, text, 0); err != nil {
		uc.metrics.RecordSendFailure("notice")
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to send notice")
		return fmt.Errorf("send notice: %w", err)
	}
	return nil
}

// notifyFailure tells the sender that a forward failed. The error itself is never shown.
func (uc *RelayUsecase) notifyFailure(ctx context.Context, chatID int64, replyTo int) {
	if _, err := uc.messages.SendText(ctx, chatID, uc.texts.DeliveryFailed, replyTo); err != nil {
		uc.metrics.RecordSendFailure("notice")
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to send delivery failure notice")
	}
}

// servesChannel accepts any channel when no allow-list is configured
func (uc *RelayUsecase) servesChannel(chatID int64) bool {
	return len(uc.cfg.AllowedChannels) == 0 || uc.IsAllowedChannel(chatID)
}

func (uc *RelayUsecase) introText(ctx context.Context) string {
	if len(uc.cfg.AllowedChannels) == 1 {
		return WithChannel(uc.texts.ChannelIntro, uc.channelName(ctx, uc.cfg.AllowedChannels[0]))
	}
	return uc.texts.Intro
}

// channelName resolves a display name from the store, then the platform, then the raw id
func (uc *RelayUsecase) channelName(ctx context.Context, chatID int64) string {
	if ch, err := uc.store.GetChannel(ctx, chatID); err == nil && ch != nil {
		return ch.DisplayName()
	}
	if info, err := uc.messages.GetChatInfo(ctx, chatID); err == nil && info != nil {
		ch := domain.Channel{ChatID: chatID, Title: info.Title, Username: info.Username}
		return ch.DisplayName()
	}
	return fmt.Sprintf("%d", chatID)
}

// postLink builds the public post link, empty when the channel cannot be looked up
func (uc *RelayUsecase) postLink(ctx context.Context, post domain.PostRef) string {
	if ch, err := uc.store.GetChannel(ctx, post.ChannelID); err == nil && ch != nil {
		return domain.PostLink(post.ChannelID, ch.Username, post.PostID)
	}
	info, err := uc.messages.GetChatInfo(ctx, post.ChannelID)
	if err != nil || info == nil {
		log.Debug().Err(err).Int64("channel_id", post.ChannelID).Msg("channel lookup failed")
		return ""
	}
	return domain.PostLink(post.ChannelID, info.Username, post.PostID)
}
