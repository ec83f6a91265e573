package wallet
// internal/domain/wallet/entity.go

import (
	"database/sql"
	"time"
)

type WalletStatus string

const (
	WalletStatusActive    WalletStatus = "active"
	WalletStatusSuspended WalletStatus = "suspended"
)

// Wallet is the single spending balance for a user. There is exactly one
// wallet row per user; every balance change goes through the transaction
// ledger, never through direct balance writes.
type Wallet struct {
	ID               int64          `json:"id" db:"id"`
	UserID           int64          `json:"user_id" db:"user_id"`
	Balance          float64        `json:"balance" db:"balance"`
	Currency         string         `json:"currency" db:"currency"`
	Status           WalletStatus   `json:"status" db:"status"`
	AccountReference sql.NullString `json:"account_reference,omitempty" db:"account_reference"`
	AccountNumber    sql.NullString `json:"account_number,omitempty" db:"account_number"`
	BankName         sql.NullString `json:"bank_name,omitempty" db:"bank_name"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

func (w *Wallet) IsActive() bool {
	return w.Status == WalletStatusActive
}

type BalanceSummary struct {
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

// FundingAccount is the virtual account details returned when a wallet is
// provisioned; deposits to this account arrive as webhook events.
type FundingAccount struct {
	AccountReference string `json:"account_reference"`
	AccountNumber    string `json:"account_number,omitempty"`
	BankName         string `json:"bank_name,omitempty"`
	AccountName      string `json:"account_name,omitempty"`
}
