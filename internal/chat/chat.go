// internal/chat/chat.go
package chat

import (
	"context"

	"github.com/rovshanmuradov/topup-shop-bot/internal/i18n"
)

// Button is an inline control. Exactly one of Data or URL is set.
type Button struct {
	Text string
	Data string
	URL  string
}

type Message struct {
	Text    string
	Buttons [][]Button
	// Photo, when set, is sent as a PNG with Text as its caption.
	Photo []byte
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

func (r MessageRef) IsZero() bool {
	return r.ChatID == 0 && r.MessageID == 0
}

// Notifier delivers messages to chats and removes them again.
type Notifier interface {
	Send(ctx context.Context, chatID int64, msg Message) (MessageRef, error)
	Delete(ctx context.Context, ref MessageRef) error
}

// Request describes the user behind an update.
type Request struct {
	UserID    int64
	Username  string
	FirstName string
	FullName  string
	Lang      i18n.Lang
	// Origin is the message whose button produced the update, if any.
	Origin MessageRef
}

func Row(buttons ...Button) []Button {
	return buttons
}

func DataButton(text, data string) Button {
	return Button{Text: text, Data: data}
}

func URLButton(text, url string) Button {
	return Button{Text: text, URL: url}
}
