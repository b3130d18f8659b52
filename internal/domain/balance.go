package domain

import "time"

// UserBalance is the per-user_key token ledger row. Invariant: Balance
// equals TotalPurchased minus TotalConsumed at every externally observable
// moment (spec.md §3). Implementations may relax this within a single
// atomic Store write but must restore it before commit.
type UserBalance struct {
	UserKey         string     `db:"user_key" json:"user_key"`
	Balance         int64      `db:"balance" json:"balance"`
	TotalPurchased  int64      `db:"total_purchased" json:"total_purchased"`
	TotalConsumed   int64      `db:"total_consumed" json:"total_consumed"`
	LastPurchaseAt  *time.Time `db:"last_purchase_at" json:"last_purchase_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// DebitOutcome is the explicit sum-typed result of a TryDebit call,
// replacing the source's exception-based insufficient-balance control flow
// (spec.md §9 design note).
type DebitOutcome struct {
	OK             bool
	NewBalance     int64
	CurrentBalance int64
}
