// internal/pending/tracker.go
package pending

import (
	"context"

	"github.com/rovshanmuradov/topup-shop-bot/internal/chat"
)

// Tracker remembers the chat messages tied to in-flight payment requests so
// they can be cleaned up once an administrator decides. It is a cache: the
// ledger stays authoritative and a lost entry only leaves a stale message.
type Tracker interface {
	// SetWait stores the user's "please wait" message.
	SetWait(ctx context.Context, userID int64, ref chat.MessageRef) error
	// TakeWait returns and forgets the user's "please wait" message.
	TakeWait(ctx context.Context, userID int64) (chat.MessageRef, bool, error)

	SetOwner(ctx context.Context, paymentID string, userID int64) error
	TakeOwner(ctx context.Context, paymentID string) (int64, bool, error)

	// AddAdminMessage records one administrator's copy of a request.
	AddAdminMessage(ctx context.Context, paymentID string, ref chat.MessageRef) error
	TakeAdminMessages(ctx context.Context, paymentID string) ([]chat.MessageRef, error)
}
