// internal/pending/memory.go
package pending

import (
	"context"
	"sync"

	"github.com/rovshanmuradov/topup-shop-bot/internal/chat"
)

type Memory struct {
	mu     sync.Mutex
	waits  map[int64]chat.MessageRef
	owners map[string]int64
	admins map[string][]chat.MessageRef
}

func NewMemory() *Memory {
	return &Memory{
		waits:  make(map[int64]chat.MessageRef),
		owners: make(map[string]int64),
		admins: make(map[string][]chat.MessageRef),
	}
}

func (m *Memory) SetWait(_ context.Context, userID int64, ref chat.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waits[userID] = ref
	return nil
}

func (m *Memory) TakeWait(_ context.Context, userID int64) (chat.MessageRef, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.waits[userID]
	delete(m.waits, userID)
	return ref, ok, nil
}

func (m *Memory) SetOwner(_ context.Context, paymentID string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[paymentID] = userID
	return nil
}

func (m *Memory) TakeOwner(_ context.Context, paymentID string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.owners[paymentID]
	delete(m.owners, paymentID)
	return userID, ok, nil
}

func (m *Memory) AddAdminMessage(_ context.Context, paymentID string, ref chat.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admins[paymentID] = append(m.admins[paymentID], ref)
	return nil
}

func (m *Memory) TakeAdminMessages(_ context.Context, paymentID string) ([]chat.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs := m.admins[paymentID]
	delete(m.admins, paymentID)
	return refs, nil
}
