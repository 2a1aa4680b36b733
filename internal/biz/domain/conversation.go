package domain

import (
	"fmt"
	"regexp"
	"strconv"
)

// ConversationContext identifies who a relayed message belongs to
type ConversationContext struct {
	UserID         int64
	ChannelID      int64
	PostID         int
	AdminMessageID int // Zero unless the message travels from the admin to a user
}

// HasAdminMessage checks if the context carries the admin message id
func (c ConversationContext) HasAdminMessage() bool {
	return c.AdminMessageID > 0
}

// Post returns the channel post the conversation is about
func (c ConversationContext) Post() PostRef {
	return PostRef{ChannelID: c.ChannelID, PostID: c.PostID}
}

// replyChainDepth is how many ancestors ResolveFromReplyChain inspects
const replyChainDepth = 2

// markerRe matches one complete marker. All of UID, CID and PID are required and must
// appear in this order; AMID is optional and must directly follow PID.
var markerRe = regexp.MustCompile(`\bUID:(-?\d+)\s+CID:(-?\d+)\s+PID:(\d+)(?:\s+AMID:(\d+))?\b`)

// MarkerToken formats the bare marker token
func MarkerToken(c ConversationContext) string {
	token := fmt.Sprintf("UID:%d CID:%d PID:%d", c.UserID, c.ChannelID, c.PostID)
	if c.HasAdminMessage() {
		token += fmt.Sprintf(" AMID:%d", c.AdminMessageID)
	}
	return token
}

// EncodeMarker formats the marker wrapped in spoiler markup so clients collapse it
func EncodeMarker(c ConversationContext) string {
	return "<tg-spoiler>" + MarkerToken(c) + "</tg-spoiler>"
}

// DecodeMarker extracts a context from arbitrary text.
// When the text holds several markers the last one wins: bot-generated markers are
// always appended after the quoted user text.
func DecodeMarker(text string) (ConversationContext, bool) {
	if text == "" {
		return ConversationContext{}, false
	}

	matches := markerRe.FindAllStringSubmatch(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if ctx, ok := contextFromMatch(matches[i]); ok {
			return ctx, true
		}
	}
	return ConversationContext{}, false
}

func contextFromMatch(m []string) (ConversationContext, bool) {
	uid, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return ConversationContext{}, false
	}
	cid, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return ConversationContext{}, false
	}
	pid, err := strconv.Atoi(m[3])
	if err != nil {
		return ConversationContext{}, false
	}

	ctx := ConversationContext{UserID: uid, ChannelID: cid, PostID: pid}
	if m[4] != "" {
		amid, err := strconv.Atoi(m[4])
		if err != nil {
			return ConversationContext{}, false
		}
		ctx.AdminMessageID = amid
	}
	return ctx, true
}

// ResolveFromReplyChain looks for a marker on the parent, then on the grandparent.
// Deeper ancestors are never inspected.
func ResolveFromReplyChain(msg *Message) (ConversationContext, bool) {
	if msg == nil {
		return ConversationContext{}, false
	}

	ancestor := msg.ReplyTo
	for depth := 0; depth < replyChainDepth && ancestor != nil; depth++ {
		if ctx, ok := DecodeMarker(ancestor.Body()); ok {
			return ctx, true
		}
		ancestor = ancestor.ReplyTo
	}
	return ConversationContext{}, false
}
