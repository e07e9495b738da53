// Package chat defines the platform-neutral shapes exchanged between chat
// transports and the command layer.
package chat

import "context"

// ContextType says where a message was sent from.
type ContextType string

const (
	// Personal is a one-to-one conversation with the bot.
	Personal ContextType = "personal"
	// Group is any multi-party conversation (groups and rooms).
	Group ContextType = "group"
)

// Source identifies the sender of an inbound message and how to answer it.
type Source struct {
	ChatUserID string
	Type       ContextType
	ReplyToken string
}

// Image is an image reply. PreviewURL may equal OriginalURL.
type Image struct {
	OriginalURL string
	PreviewURL  string
}

// Message is a single outbound reply: either Text or Image is set.
type Message struct {
	Text  string
	Image *Image
}

// Text builds a text reply.
func Text(s string) Message {
	return Message{Text: s}
}

// ImageURL builds an image reply whose preview is the image itself.
func ImageURL(url string) Message {
	return Message{Image: &Image{OriginalURL: url, PreviewURL: url}}
}

// Messenger delivers replies to the conversation identified by replyToken.
type Messenger interface {
	Reply(ctx context.Context, replyToken string, msgs []Message) error
}
