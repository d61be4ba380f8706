// Package transport defines the chat primitives the pipeline needs from a
// messaging client. The Telegram implementation lives in transport/telegram.
package transport

import (
	"context"
	"io"
	"time"

	"mediarelay/internal/media"
)

// MessageRef points at one message in one chat.
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

// IsZero reports whether the ref points nowhere.
func (r MessageRef) IsZero() bool { return r.MessageID == 0 }

// File is either a remote URL the transport fetches itself, or a byte stream.
type File struct {
	Kind media.Kind
	// URL is handed to the transport as is (direct handoff).
	URL string
	// Reader supplies the bytes when URL is empty.
	Reader   io.Reader
	Name     string
	Size     int64
	Duration time.Duration
	Width    int
	Height   int
}

// ProgressFunc receives upload progress. total is zero when unknown.
type ProgressFunc func(done, total int64)

// Button is an inline button carrying opaque callback data.
type Button struct {
	Text string
	Data string
}

// Transport is the outbound side of the chat client.
type Transport interface {
	SendStatus(ctx context.Context, chatID int64, replyTo int, text string) (MessageRef, error)
	// EditStatus replaces the text of ref and drops any inline buttons.
	// Editing to identical text is not an error.
	EditStatus(ctx context.Context, ref MessageRef, text string) error
	SendFile(ctx context.Context, chatID int64, replyTo int, f File, caption string, progress ProgressFunc) (MessageRef, error)
	SendText(ctx context.Context, chatID int64, replyTo int, text string) (MessageRef, error)
	SendButton(ctx context.Context, chatID int64, replyTo int, text string, b Button) (MessageRef, error)
	DeleteMessage(ctx context.Context, ref MessageRef) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}

// Message is an inbound text message.
type Message struct {
	ChatID    int64
	MessageID int
	// From identifies the sender; it is the admission principal.
	From     string
	Username string
	Text     string
}

// Callback is an inbound button press.
type Callback struct {
	ID        string
	ChatID    int64
	MessageID int
	// ReplyTo is the message the button message answers, zero when unknown.
	ReplyTo int
	From    string
	Data    string
}

// Handler consumes inbound events.
type Handler interface {
	HandleMessage(ctx context.Context, m Message)
	HandleCallback(ctx context.Context, c Callback)
}
