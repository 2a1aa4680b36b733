package domain

// RelayDirection tells which way a relayed message travels
type RelayDirection string

const (
	DirectionNewComment RelayDirection = "new"   // User -> admin, first message on a post
	DirectionUserReply  RelayDirection = "reply" // User -> admin, answer to an admin message
	DirectionAdminReply RelayDirection = "admin" // Admin -> user
)

// RelayContext is the resolved context of one relayed unit (single message or album)
type RelayContext struct {
	Direction    RelayDirection
	Conversation ConversationContext
	TargetChatID int64
	ReplyTo      int    // Message id in the target chat to reply to, 0 for none
	SenderLabel  string // "@name" or "id:123", empty for the admin
	PostLink     string
	Dropped      bool // Admission was denied, items are buffered only to be discarded
}

// AlbumGroup is a flushed album: the parts in arrival order plus their context
type AlbumGroup struct {
	GroupID string
	Items   []*Message
	Context RelayContext
}

// Caption returns the caption of the first part, which clients show for the album
func (g *AlbumGroup) Caption() string {
	if len(g.Items) == 0 {
		return ""
	}
	return g.Items[0].TrimmedCaption()
}
