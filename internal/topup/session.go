// internal/topup/session.go
package topup

import (
	"sync"

	"github.com/rovshanmuradov/topup-shop-bot/internal/db"
)

type Step int

const (
	StepIdle Step = iota
	StepSelectMethod
	StepSelectCrypto
	StepSelectUSDTNetwork
	StepEnterAmount
	StepConfirmPayment
)

func (s Step) String() string {
	switch s {
	case StepSelectMethod:
		return "select_method"
	case StepSelectCrypto:
		return "select_crypto"
	case StepSelectUSDTNetwork:
		return "select_usdt_network"
	case StepEnterAmount:
		return "enter_amount"
	case StepConfirmPayment:
		return "confirm_payment"
	default:
		return "idle"
	}
}

// Session is one user's progress through a top-up.
type Session struct {
	Step         Step
	Method       string
	Asset        *Asset
	Network      *Network
	Amount       float64
	CryptoAmount *float64

	// gen is the generation the session was read under. A put with an older
	// generation is dropped.
	gen uint64
}

func (s *Session) IsCrypto() bool {
	return s.Method == db.MethodCrypto
}

// sessions holds one session per user. Every drop bumps the user's
// generation, so a transition that started before a cancel cannot store its
// result afterwards.
type sessions struct {
	mu   sync.Mutex
	byID map[int64]*Session
	gens map[int64]uint64
}

func newSessions() *sessions {
	return &sessions{
		byID: make(map[int64]*Session),
		gens: make(map[int64]uint64),
	}
}

// get returns a copy so callers never share a session with another goroutine.
func (s *sessions) get(userID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[userID]
	if !ok {
		return Session{}, false
	}
	out := *sess
	out.gen = s.gens[userID]
	return out, true
}

// put stores sess unless the user's session was dropped since sess was read.
func (s *sessions) put(userID int64, sess Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[userID] != sess.gen {
		return false
	}
	s.byID[userID] = &sess
	return true
}

// live reports whether a session read under gen is still current.
func (s *sessions) live(userID int64, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byID[userID]
	return ok && s.gens[userID] == gen
}

// drop removes the session and returns the new generation.
func (s *sessions) drop(userID int64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, userID)
	s.gens[userID]++
	return s.gens[userID]
}
