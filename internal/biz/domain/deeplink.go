package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// payloadSeparator splits the channel id from the post id in a start payload
const payloadSeparator = "msg"

// ErrInvalidPayload is returned when a start payload cannot be decoded
var ErrInvalidPayload = errors.New("invalid start payload")

// PostRef points at one channel post
type PostRef struct {
	ChannelID int64
	PostID    int
}

// StartPayload formats the deep-link parameter, e.g. "-100123msg55"
func (p PostRef) StartPayload() string {
	return fmt.Sprintf("%d%s%d", p.ChannelID, payloadSeparator, p.PostID)
}

// DeepLink builds the bot link that opens a comment for the post
func (p PostRef) DeepLink(botUsername string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", botUsername, p.StartPayload())
}

// ParseStartPayload decodes "<channel_id>msg<post_id>". Both sides must be integers.
func ParseStartPayload(payload string) (PostRef, error) {
	cidPart, pidPart, ok := strings.Cut(payload, payloadSeparator)
	if !ok {
		return PostRef{}, ErrInvalidPayload
	}
	cid, err := strconv.ParseInt(cidPart, 10, 64)
	if err != nil {
		return PostRef{}, ErrInvalidPayload
	}
	pid, err := strconv.Atoi(pidPart)
	if err != nil {
		return PostRef{}, ErrInvalidPayload
	}
	return PostRef{ChannelID: cid, PostID: pid}, nil
}

// PostLink builds a public link to the post. Private channels use the /c/ form
// with the "-100" prefix stripped from the chat id.
func PostLink(channelID int64, username string, postID int) string {
	if username != "" {
		return fmt.Sprintf("https://t.me/%s/%d", username, postID)
	}
	internal := strconv.FormatInt(channelID, 10)
	internal = strings.TrimPrefix(internal, "-")
	internal = strings.TrimPrefix(internal, "100")
	return fmt.Sprintf("https://t.me/c/%s/%d", internal, postID)
}
