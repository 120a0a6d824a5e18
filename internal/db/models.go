// internal/db/models.go
package db

import (
	"time"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusRejected  = "rejected"

	MethodFiatLink = "fiat_link"
	MethodCrypto   = "crypto"

	DefaultLanguage = "ru"
)

type User struct {
	UserID           int64    `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	Balance          *float64 `gorm:"column:balance;default:0"`
	RegistrationDate time.Time
	Username         *string
	Language         string `gorm:"default:ru"`
}

// BalanceValue treats a NULL balance as zero.
func (u User) BalanceValue() float64 {
	if u.Balance == nil {
		return 0
	}
	return *u.Balance
}

type PaymentRequest struct {
	PaymentID    string `gorm:"column:payment_id;primaryKey"`
	UserID       int64
	Method       string
	Amount       float64
	Crypto       *string
	CryptoAmount *float64
	Network      *string
	Status       string `gorm:"default:pending"`
	CreatedAt    time.Time
}

func (PaymentRequest) TableName() string {
	return "payment_requests"
}
