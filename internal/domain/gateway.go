package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// VerifyStatus is the gateway-reported outcome of a verify call, mapped
// from the provider's raw response code per spec.md §4.2.
type VerifyStatus string

const (
	VerifyStatusSuccessful VerifyStatus = "successful"
	VerifyStatusPending    VerifyStatus = "pending"
	VerifyStatusFailed     VerifyStatus = "failed"
)

// VerifyResult is the outcome of GatewayClient.Verify. GatewayPayload is
// the raw (already PII-safe) response body, stored opaquely on the
// transaction row.
type VerifyResult struct {
	Status         VerifyStatus
	GatewayPayload string
}

// InlineConfig carries the fields a browser widget needs to render an
// embedded checkout, mirroring the parameters of PaymentURL without
// requiring a redirect.
type InlineConfig struct {
	MerchantCode string
	PayItemID    string
	Reference    string
	AmountMinor  int64
	Currency     string
	UserKey      string
	ReturnURL    string
	Hash         string
}

// Gateway adapts the external payment gateway's three operations
// (spec.md §4.2). PaymentURL and InlineConfig are pure computation — no
// network I/O. Verify performs a single bounded network call and must
// distinguish network/5xx failure (ErrGatewayUnavailable, retryable) from
// a gateway-reported rejection, which is not an error but a VerifyResult
// with Status VerifyStatusFailed (terminal).
type Gateway interface {
	// PaymentURL deterministically builds the checkout URL for reference.
	PaymentURL(reference string, amount decimal.Decimal, currency, userKey, returnURL string) (string, error)

	// Verify asks the gateway for the terminal outcome of reference.
	Verify(ctx context.Context, reference string, amount decimal.Decimal) (VerifyResult, error)

	// InlineConfig returns the widget-embeddable configuration for
	// reference without any network I/O.
	InlineConfig(reference string, amount decimal.Decimal, userKey, returnURL string) (InlineConfig, error)
}
