package domain

import "strings"

// MediaKind represents the content kind of an inbound message
type MediaKind string

const (
	MediaText      MediaKind = "text"
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaDocument  MediaKind = "document"
	MediaVoice     MediaKind = "voice"
	MediaVideoNote MediaKind = "video_note"
	MediaAudio     MediaKind = "audio"
)

// AlbumCapable reports whether items of this kind may be grouped into an album.
// Voice, audio and round videos are never buffered.
func (k MediaKind) AlbumCapable() bool {
	switch k {
	case MediaPhoto, MediaVideo, MediaDocument:
		return true
	}
	return false
}

// CaptionCapable reports whether the kind can be re-sent with a caption
func (k MediaKind) CaptionCapable() bool {
	switch k {
	case MediaPhoto, MediaVideo, MediaDocument, MediaAudio:
		return true
	}
	return false
}

// Media is a file attached to a message
type Media struct {
	Kind     MediaKind
	FileID   string
	UniqueID string
}

// Message represents an inbound message event
type Message struct {
	ID             int
	ChatID         int64
	SenderID       int64
	SenderUsername string
	Text           string
	Caption        string
	Media          *Media
	AlbumID        string   // Shared by all parts of one album
	ReplyTo        *Message // Parent message, may itself carry a parent
	Payload        string   // Command argument, e.g. the /start parameter
}

// Kind returns the content kind of the message
func (m *Message) Kind() MediaKind {
	if m.Media == nil {
		return MediaText
	}
	return m.Media.Kind
}

// Body returns the visible text or caption
func (m *Message) Body() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// IsAlbumPart checks if the message belongs to a groupable album
func (m *Message) IsAlbumPart() bool {
	return m.AlbumID != "" && m.Kind().AlbumCapable()
}

// SenderLabel formats the sender for admin notifications
func (m *Message) SenderLabel() string {
	if m.SenderUsername != "" {
		return "@" + m.SenderUsername
	}
	return "id:" + itoa64(m.SenderID)
}

// TrimmedCaption returns the caption without surrounding whitespace
func (m *Message) TrimmedCaption() string {
	return strings.TrimSpace(m.Caption)
}
