package usecase

import (
	"fmt"
	"html"
	"strings"

	"github.com/kvantora/comment-bridge/internal/biz/domain"
)

// Texts contains every user-facing message. Values are HTML; {{channel}} is replaced
// with the escaped channel name where it appears.
type Texts struct {
	Intro            string
	ChannelIntro     string
	CommentPrompt    string
	InvalidLink      string
	Cancelled        string
	SelectPostFirst  string
	EmptyComment     string
	RateLimited      string
	CommentSent      string
	ReplySent        string
	UnknownRecipient string
	DeliveryFailed   string
	CommentButton    string

	NewCommentTitle   string
	UserReplyTitle    string
	AdminMessageTitle string
	UserLabel         string
	PostLabel         string
	AdminHint         string // Appended to new comments shown to the admin
	UserHint          string // Appended to admin messages shown to a user
}

// DefaultTexts returns the built-in English texts
func DefaultTexts() Texts {
	return Texts{
		Intro: "<b>Anonymous comments on channel posts</b>\n\n" +
			"<b>How to use</b>:\n" +
			"1) Open a post in the channel.\n" +
			"2) Tap «💬 Comment» under the post.\n" +
			"3) Send one message with text or media.\n" +
			"4) When the admin answers, <i>reply to their message</i> here to continue.\n\n" +
			"<b>You can send</b>: text, photos (albums too), video, documents, audio, voice and round videos.\n\n" +
			"/cancel - drop the current comment",
		ChannelIntro: "💬 Anonymous comment for the admin of <b>{{channel}}</b>\n\n" +
			"1) Open a post in {{channel}}.\n" +
			"2) Tap «💬 Comment» under the post.\n" +
			"3) The bot opens bound to that post.\n\n" +
			"/cancel - drop the current comment",
		CommentPrompt: "📝 Comment for the admin of <b>{{channel}}</b>\n\n" +
			"Send it <u>as one message</u> and I will pass it on.\n\n" +
			"/cancel - drop the comment",
		InvalidLink:      "Invalid link. Open the post and tap the button again.",
		Cancelled:        "Cancelled.",
		SelectPostFirst:  "To leave a comment, tap the button under a post.",
		EmptyComment:     "Empty comment. Please write some text.",
		RateLimited:      "Too many messages. Try again later.",
		CommentSent:      "✅ Sent to the admin.",
		ReplySent:        "✅ Sent to the admin.",
		UnknownRecipient: "Can't identify the recipient. Reply to a bot notification.",
		DeliveryFailed:   "⚠️ Couldn't deliver the message. Try again later.",
		CommentButton:    "💬 Comment",

		NewCommentTitle:   "💬 <b>New comment</b>",
		UserReplyTitle:    "↩️ <b>Reply from user</b>",
		AdminMessageTitle: "✅ <b>Message from the admin</b>",
		UserLabel:         "User",
		PostLabel:         "Post",
		AdminHint:         "Reply to this message to answer the user.",
		UserHint:          "Reply to this message to write to the admin.",
	}
}

// WithChannel substitutes the channel name into a template
func WithChannel(template, channel string) string {
	return strings.ReplaceAll(template, "{{channel}}", html.EscapeString(channel))
}

// NewCommentHeader formats the admin notification for a new comment
func (t Texts) NewCommentHeader(who, link string, conv domain.ConversationContext, caption string) string {
	return t.header(t.NewCommentTitle, who, link, conv, caption, t.AdminHint)
}

// UserReplyHeader formats the admin notification for a user's answer
func (t Texts) UserReplyHeader(who, link string, conv domain.ConversationContext, caption string) string {
	return t.header(t.UserReplyTitle, who, link, conv, caption, "")
}

// AdminMessageHeader formats an admin message delivered to a user. conv must carry
// the admin message id so the user's answer can be threaded.
func (t Texts) AdminMessageHeader(link string, conv domain.ConversationContext, caption string) string {
	return t.header(t.AdminMessageTitle, "", link, conv, caption, t.UserHint)
}

// HeaderFor picks the header matching a relay direction
func (t Texts) HeaderFor(rc domain.RelayContext, caption string) string {
	switch rc.Direction {
	case domain.DirectionUserReply:
		return t.UserReplyHeader(rc.SenderLabel, rc.PostLink, rc.Conversation, caption)
	case domain.DirectionAdminReply:
		return t.AdminMessageHeader(rc.PostLink, rc.Conversation, caption)
	default:
		return t.NewCommentHeader(rc.SenderLabel, rc.PostLink, rc.Conversation, caption)
	}
}

func (t Texts) header(title, who, link string, conv domain.ConversationContext, caption, hint string) string {
	var sb strings.Builder

	sb.WriteString(title)
	sb.WriteString("\n")
	if who != "" {
		fmt.Fprintf(&sb, "%s: %s\n", t.UserLabel, html.EscapeString(who))
	}
	fmt.Fprintf(&sb, "%s: %s\n\n", t.PostLabel, postLine(link, conv))

	if caption = strings.TrimSpace(caption); caption != "" {
		fmt.Fprintf(&sb, "<blockquote>%s</blockquote>\n\n", html.EscapeString(caption))
	}

	sb.WriteString(domain.EncodeMarker(conv))
	if hint != "" {
		sb.WriteString("\n")
		sb.WriteString(hint)
	}
	return sb.String()
}

func postLine(link string, conv domain.ConversationContext) string {
	if link != "" {
		return html.EscapeString(link)
	}
	return fmt.Sprintf("chat_id=%d, msg_id=%d", conv.ChannelID, conv.PostID)
}
