package domain

import "time"

// ServiceKind enumerates the priced operations a ConsumptionGuard may gate.
type ServiceKind string

const (
	ServiceAnalysis        ServiceKind = "analysis"
	ServiceTransform       ServiceKind = "transform"
	ServicePremiumInsights ServiceKind = "premium_insights"
)

// ServiceKinds lists every recognized value, for validation and for
// rendering the pricing catalogue.
var ServiceKinds = []ServiceKind{ServiceAnalysis, ServiceTransform, ServicePremiumInsights}

// Valid reports whether k is one of the enumerated service kinds.
func (k ServiceKind) Valid() bool {
	for _, v := range ServiceKinds {
		if v == k {
			return true
		}
	}
	return false
}

// ConsumptionEntry is one append-only row per paid operation (spec.md §3).
type ConsumptionEntry struct {
	ID          string      `db:"id" json:"id"`
	UserKey     string      `db:"user_key" json:"user_key"`
	TokenQty    int64       `db:"token_qty" json:"token_qty"`
	ServiceKind ServiceKind `db:"service_kind" json:"service_kind"`
	WorkItemID  *string     `db:"work_item_id" json:"work_item_id,omitempty"`
	Description *string     `db:"description" json:"description,omitempty"`
	ConsumedAt  time.Time   `db:"consumed_at" json:"consumed_at"`
}
