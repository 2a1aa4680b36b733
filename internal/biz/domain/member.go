package domain

import (
	"strconv"
	"time"
)

// User represents a commenting reader
type User struct {
	TgID      int64
	Username  string
	CreatedAt time.Time
}

// Channel represents a broadcast channel the bot serves
type Channel struct {
	ChatID    int64
	Username  string
	Title     string
	CreatedAt time.Time
}

// DisplayName returns the title, the @username or the raw id
func (c *Channel) DisplayName() string {
	if c.Title != "" {
		return c.Title
	}
	if c.Username != "" {
		return "@" + c.Username
	}
	return itoa64(c.ChatID)
}

// Comment is one logical comment; an album is still a single comment
type Comment struct {
	ID        int64
	ChannelID int64
	PostID    int
	UserID    int64
	Text      string
	CreatedAt time.Time
	Media     []CommentMedia
}

// CommentMedia is one file attached to a comment
type CommentMedia struct {
	ID        int64
	CommentID int64
	MediaType MediaKind
	FileID    string
	UniqueID  string
	GroupID   string // Album id shared by siblings, empty for singles
	CreatedAt time.Time
}

// MediaRecord builds the comment media row for a message, if it carries a file
func MediaRecord(m *Message) (CommentMedia, bool) {
	if m.Media == nil {
		return CommentMedia{}, false
	}
	rec := CommentMedia{
		MediaType: m.Media.Kind,
		FileID:    m.Media.FileID,
		UniqueID:  m.Media.UniqueID,
	}
	if m.IsAlbumPart() {
		rec.GroupID = m.AlbumID
	}
	return rec, true
}

func itoa64(v int64) string {
	return strconv.FormatInt(v, 10)
}
