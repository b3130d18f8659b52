package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus enumerates the four terminal/non-terminal states a
// PaymentTransaction may occupy. A transaction transitions
// pending -> successful|failed|cancelled at most once (spec.md §3).
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusSuccessful TransactionStatus = "successful"
	StatusFailed     TransactionStatus = "failed"
	StatusCancelled  TransactionStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transition.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusSuccessful || s == StatusFailed || s == StatusCancelled
}

// PaymentTransaction is one row per purchase attempt. CreditApplied
// records whether TokenQty has already been credited to UserKey under
// Reference — the optional refinement from spec.md §7 adopted to make
// reconciliation-time credit replay safe (see DESIGN.md).
type PaymentTransaction struct {
	Reference      string            `db:"reference" json:"reference"`
	UserKey        string            `db:"user_key" json:"user_key"`
	Amount         decimal.Decimal   `db:"amount" json:"amount"`
	Currency       string            `db:"currency" json:"currency"`
	TokenQty       int64             `db:"token_qty" json:"token_qty"`
	Status         TransactionStatus `db:"status" json:"status"`
	GatewayPayload *string           `db:"gateway_payload" json:"-"`
	CreditApplied  bool              `db:"credit_applied" json:"-"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
	CompletedAt    *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
}
