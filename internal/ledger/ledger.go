// internal/ledger/ledger.go
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rovshanmuradov/topup-shop-bot/internal/db"
	"github.com/rovshanmuradov/topup-shop-bot/internal/logging"
)

var (
	ErrPaymentNotFound   = errors.New("payment not found or not pending")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidMethod     = errors.New("unknown payment method")
)

// Store owns user balances and payment requests.
type Store struct {
	db       *gorm.DB
	log      *zap.Logger
	attempts uint
	now      func() time.Time
}

func NewStore(gdb *gorm.DB) *Store {
	return &Store{
		db:       gdb,
		log:      logging.Named("ledger"),
		attempts: 5,
		now:      time.Now,
	}
}

// Confirmation is the outcome of a successful ConfirmPayment.
type Confirmation struct {
	UserID     int64
	Amount     float64
	NewBalance float64
}

type NewPayment struct {
	UserID       int64
	Method       string
	Amount       float64
	Crypto       *string
	CryptoAmount *float64
	Network      *string
}

// GetUser returns the stored user or, when absent, a zero-balance record that
// is not persisted.
func (s *Store) GetUser(ctx context.Context, userID int64) (db.User, error) {
	var u db.User
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		zero := 0.0
		return db.User{UserID: userID, Balance: &zero, Language: db.DefaultLanguage}, nil
	}
	if err != nil {
		return db.User{}, fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	return u, nil
}

func (s *Store) UserExists(ctx context.Context, userID int64) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&db.User{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check user %d: %w", userID, err)
	}
	return count > 0, nil
}

// UserLanguage returns the stored language and whether the user has one.
func (s *Store) UserLanguage(ctx context.Context, userID int64) (string, bool, error) {
	var u db.User
	err := s.db.WithContext(ctx).Select("user_id", "language").Where("user_id = ?", userID).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get language of user %d: %w", userID, err)
	}
	return u.Language, u.Language != "", nil
}

// RegisterUser inserts the user if absent and reports whether a row was
// created. An existing balance or registration date is never touched.
func (s *Store) RegisterUser(ctx context.Context, userID int64, username, lang string) (bool, error) {
	var created bool
	err := s.transact(ctx, func(tx *gorm.DB) error {
		u := s.newUser(userID, username, lang, 0)
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&u)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to register user %d: %w", userID, err)
	}
	if created {
		s.log.Info("User registered", zap.Int64("user_id", userID), zap.String("language", lang))
	}
	return created, nil
}

// SetUserLanguage stores the language, creating the user if needed.
func (s *Store) SetUserLanguage(ctx context.Context, userID int64, lang string) error {
	err := s.transact(ctx, func(tx *gorm.DB) error {
		u := s.newUser(userID, "", lang, 0)
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"language"}),
		}).Create(&u).Error
	})
	if err != nil {
		return fmt.Errorf("failed to set language of user %d: %w", userID, err)
	}
	return nil
}

func (s *Store) UpdateUsername(ctx context.Context, userID int64, username string) error {
	err := s.transact(ctx, func(tx *gorm.DB) error {
		return tx.Model(&db.User{}).Where("user_id = ?", userID).Update("username", optional(username)).Error
	})
	if err != nil {
		return fmt.Errorf("failed to update username of user %d: %w", userID, err)
	}
	return nil
}

// UpdateBalance adds delta to the balance. A NULL balance counts as zero.
func (s *Store) UpdateBalance(ctx context.Context, userID int64, delta float64) error {
	err := s.transact(ctx, func(tx *gorm.DB) error {
		return s.credit(tx, userID, delta)
	})
	if err != nil {
		return fmt.Errorf("failed to update balance of user %d: %w", userID, err)
	}
	return nil
}

// Debit subtracts amount only if the balance covers it and returns the new
// balance. The check and the update are one statement, so concurrent debits
// cannot take the balance below zero.
func (s *Store) Debit(ctx context.Context, userID int64, amount float64) (float64, error) {
	if !validAmount(amount) {
		return 0, ErrInvalidAmount
	}

	var balance float64
	err := s.transact(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&db.User{}).
			Where("user_id = ? AND COALESCE(balance, 0) >= ?", userID, amount).
			Update("balance", gorm.Expr("COALESCE(balance, 0) - ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientFunds
		}
		var err error
		balance, err = readBalance(tx, userID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to debit user %d: %w", userID, err)
	}

	s.log.Info("Balance debited", zap.Int64("user_id", userID), zap.Float64("amount", amount), zap.Float64("balance", balance))
	return balance, nil
}

// RecordPaymentRequest stores a new pending request and returns its id.
func (s *Store) RecordPaymentRequest(ctx context.Context, p NewPayment) (string, error) {
	if !validAmount(p.Amount) {
		return "", ErrInvalidAmount
	}
	if p.Method != db.MethodFiatLink && p.Method != db.MethodCrypto {
		return "", ErrInvalidMethod
	}

	req := db.PaymentRequest{
		PaymentID:    uuid.NewString(),
		UserID:       p.UserID,
		Method:       p.Method,
		Amount:       p.Amount,
		Crypto:       p.Crypto,
		CryptoAmount: p.CryptoAmount,
		Network:      p.Network,
		Status:       db.StatusPending,
		CreatedAt:    s.now(),
	}
	err := s.transact(ctx, func(tx *gorm.DB) error {
		return tx.Create(&req).Error
	})
	if err != nil {
		return "", fmt.Errorf("failed to record payment request: %w", err)
	}

	s.log.Info("Payment request recorded",
		zap.String("payment_id", req.PaymentID),
		zap.Int64("user_id", p.UserID),
		zap.String("method", p.Method),
		zap.Float64("amount", p.Amount),
	)
	return req.PaymentID, nil
}

// ConfirmPayment flips a pending request to confirmed and credits the user in
// the same transaction. A request that is unknown or no longer pending yields
// ErrPaymentNotFound and changes nothing.
func (s *Store) ConfirmPayment(ctx context.Context, paymentID string) (Confirmation, error) {
	var conf Confirmation
	err := s.transact(ctx, func(tx *gorm.DB) error {
		if err := transition(tx, paymentID, db.StatusConfirmed); err != nil {
			return err
		}

		var p db.PaymentRequest
		if err := tx.Where("payment_id = ?", paymentID).Take(&p).Error; err != nil {
			return err
		}
		if err := s.credit(tx, p.UserID, p.Amount); err != nil {
			return err
		}
		balance, err := readBalance(tx, p.UserID)
		if err != nil {
			return err
		}

		conf = Confirmation{UserID: p.UserID, Amount: p.Amount, NewBalance: balance}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return Confirmation{}, err
		}
		return Confirmation{}, fmt.Errorf("failed to confirm payment %s: %w", paymentID, err)
	}

	s.log.Info("Payment confirmed",
		zap.String("payment_id", paymentID),
		zap.Int64("user_id", conf.UserID),
		zap.Float64("amount", conf.Amount),
		zap.Float64("balance", conf.NewBalance),
	)
	return conf, nil
}

// RejectPayment flips a pending request to rejected. The user id is returned
// whenever the request exists, even if it was already terminal.
func (s *Store) RejectPayment(ctx context.Context, paymentID string) (int64, bool, error) {
	var (
		userID   int64
		rejected bool
	)
	err := s.transact(ctx, func(tx *gorm.DB) error {
		userID, rejected = 0, false

		err := transition(tx, paymentID, db.StatusRejected)
		if err != nil && !errors.Is(err, ErrPaymentNotFound) {
			return err
		}
		rejected = err == nil

		var p db.PaymentRequest
		err = tx.Select("payment_id", "user_id").Where("payment_id = ?", paymentID).Take(&p).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		userID = p.UserID
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to reject payment %s: %w", paymentID, err)
	}

	if rejected {
		s.log.Info("Payment rejected", zap.String("payment_id", paymentID), zap.Int64("user_id", userID))
	}
	return userID, rejected, nil
}

func (s *Store) GetPayment(ctx context.Context, paymentID string) (db.PaymentRequest, error) {
	var p db.PaymentRequest
	err := s.db.WithContext(ctx).Where("payment_id = ?", paymentID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.PaymentRequest{}, ErrPaymentNotFound
	}
	if err != nil {
		return db.PaymentRequest{}, fmt.Errorf("failed to get payment %s: %w", paymentID, err)
	}
	return p, nil
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ListPayments returns the newest requests first, optionally by status.
func (s *Store) ListPayments(ctx context.Context, status string, limit int) ([]db.PaymentRequest, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var out []db.PaymentRequest
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return out, nil
}

// validAmount accepts finite positive amounts only.
func validAmount(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func transition(tx *gorm.DB, paymentID, status string) error {
	res := tx.Model(&db.PaymentRequest{}).
		Where("payment_id = ? AND status = ?", paymentID, db.StatusPending).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// credit adds amount to the user's balance, creating the user if the row is
// missing.
func (s *Store) credit(tx *gorm.DB, userID int64, amount float64) error {
	res := tx.Model(&db.User{}).
		Where("user_id = ?", userID).
		Update("balance", gorm.Expr("COALESCE(balance, 0) + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	u := s.newUser(userID, "", db.DefaultLanguage, amount)
	return tx.Create(&u).Error
}

func readBalance(tx *gorm.DB, userID int64) (float64, error) {
	var u db.User
	if err := tx.Select("user_id", "balance").Where("user_id = ?", userID).Take(&u).Error; err != nil {
		return 0, err
	}
	return u.BalanceValue(), nil
}

func (s *Store) newUser(userID int64, username, lang string, balance float64) db.User {
	if lang == "" {
		lang = db.DefaultLanguage
	}
	return db.User{
		UserID:           userID,
		Balance:          &balance,
		RegistrationDate: s.now(),
		Username:         optional(username),
		Language:         lang,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// transact runs fn in a transaction and retries it when the database reports
// lock contention.
func (s *Store) transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return retry.Do(
		func() error {
			return s.db.WithContext(ctx).Transaction(fn)
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(20*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.log.Warn("Retrying ledger transaction", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
}

func isTransient(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return false
}
