// Package chattest provides an in-memory chat.Notifier for tests.
package chattest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rovshanmuradov/topup-shop-bot/internal/chat"
)

var (
	ErrBlocked = errors.New("chat blocked the bot")
	// ErrMessageGone is returned when deleting a message twice.
	ErrMessageGone = errors.New("message to delete not found")
)

type Sent struct {
	Ref chat.MessageRef
	Msg chat.Message
}

type Recorder struct {
	mu      sync.Mutex
	nextID  int
	sent    []Sent
	deleted []chat.MessageRef
	blocked map[int64]bool
}

func New() *Recorder {
	return &Recorder{blocked: map[int64]bool{}}
}

// Block makes every Send to chatID fail.
func (r *Recorder) Block(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocked[chatID] = true
}

func (r *Recorder) Send(_ context.Context, chatID int64, msg chat.Message) (chat.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.blocked[chatID] {
		return chat.MessageRef{}, ErrBlocked
	}
	r.nextID++
	ref := chat.MessageRef{ChatID: chatID, MessageID: r.nextID}
	r.sent = append(r.sent, Sent{Ref: ref, Msg: msg})
	return ref, nil
}

func (r *Recorder) Delete(_ context.Context, ref chat.MessageRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.deleted {
		if d == ref {
			return ErrMessageGone
		}
	}
	r.deleted = append(r.deleted, ref)
	return nil
}

func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sent, len(r.sent))
	copy(out, r.sent)
	return out
}

// To returns messages delivered to chatID in order.
func (r *Recorder) To(chatID int64) []Sent {
	var out []Sent
	for _, s := range r.Sent() {
		if s.Ref.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

// Last returns the most recent message for chatID.
func (r *Recorder) Last(chatID int64) (Sent, bool) {
	msgs := r.To(chatID)
	if len(msgs) == 0 {
		return Sent{}, false
	}
	return msgs[len(msgs)-1], true
}

func (r *Recorder) Deleted() []chat.MessageRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]chat.MessageRef, len(r.deleted))
	copy(out, r.deleted)
	return out
}

func (r *Recorder) WasDeleted(ref chat.MessageRef) bool {
	for _, d := range r.Deleted() {
		if d == ref {
			return true
		}
	}
	return false
}

// ButtonData flattens the callback data of every button in msg.
func ButtonData(msg chat.Message) []string {
	var out []string
	for _, row := range msg.Buttons {
		for _, b := range row {
			if b.Data != "" {
				out = append(out, b.Data)
			}
		}
	}
	return out
}

// ButtonURLs flattens the URLs of every link button in msg.
func ButtonURLs(msg chat.Message) []string {
	var out []string
	for _, row := range msg.Buttons {
		for _, b := range row {
			if b.URL != "" {
				out = append(out, b.URL)
			}
		}
	}
	return out
}

// Contains reports whether any message to chatID contains substr.
func (r *Recorder) Contains(chatID int64, substr string) bool {
	for _, s := range r.To(chatID) {
		if strings.Contains(s.Msg.Text, substr) {
			return true
		}
	}
	return false
}
