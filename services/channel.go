package services

import "context"

// InboundMessage is the canonical form of one user message, normalized from
// a platform-specific webhook payload.
type InboundMessage struct {
	MessageID   string
	ChatID      string
	SenderName  string
	Phone       string
	MessageType string // models.TypeText, TypeImage, TypeDocument
	Text        string // body text, or caption for media messages
	MediaID     string // platform media reference, empty for text
	MimeType    string // declared mime type of the media, if any
}

// HasMedia reports whether the message carries an attachment to relay.
func (m *InboundMessage) HasMedia() bool {
	return m.MediaID != ""
}

// MessageChannel is the outbound capability surface of one chat platform,
// selected once at tenant-resolution time.
type MessageChannel interface {
	// Platform returns models.PlatformWhatsApp or models.PlatformTelegram.
	Platform() string

	// SendText delivers a text message to a chat. The text is reformatted
	// for the platform before the wire call.
	SendText(ctx context.Context, chatID, text string) error

	// FetchMedia resolves a platform media reference to its bytes and
	// reported content type. The underlying URLs are short-lived.
	FetchMedia(ctx context.Context, mediaID string) ([]byte, string, error)
}
