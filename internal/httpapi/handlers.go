package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenalign/tokencore/internal/consumption"
	"github.com/zenalign/tokencore/internal/domain"
	"github.com/zenalign/tokencore/internal/ledger"
	"github.com/zenalign/tokencore/internal/orchestrator"
	"github.com/zenalign/tokencore/internal/pricing"
	pkgerrors "github.com/zenalign/tokencore/pkg/errors"
	"github.com/zenalign/tokencore/pkg/log"
)

// Handlers wires the HTTP layer to the domain services. Every handler
// parses its inputs, delegates to exactly one domain call, and renders
// the result — no business logic lives here.
type Handlers struct {
	policy       *pricing.Policy
	ledger       *ledger.Ledger
	orchestrator *orchestrator.Orchestrator
	guard        *consumption.Guard
	logger       *zap.Logger
}

// pricingResponse is the GET /payment/pricing response body.
type pricingResponse struct {
	Currency           string                      `json:"currency"`
	TokensPerUnitMoney int64                       `json:"tokens_per_unit_money"`
	MinPurchaseMoney   string                      `json:"min_purchase_money"`
	MaxPurchaseMoney   string                      `json:"max_purchase_money"`
	FreeGrantTokens    int64                       `json:"free_grant_tokens"`
	ServiceCosts       map[domain.ServiceKind]int64 `json:"service_costs"`
}

// Pricing implements GET /payment/pricing.
func (h *Handlers) Pricing(w http.ResponseWriter, r *http.Request) {
	min, max := h.policy.Bounds()
	OK(w, r, pricingResponse{
		Currency:           h.policy.Currency(),
		TokensPerUnitMoney: h.policy.TokensPerUnitMoney(),
		MinPurchaseMoney:   min.String(),
		MaxPurchaseMoney:   max.String(),
		FreeGrantTokens:    h.policy.FreeGrantTokens(),
		ServiceCosts:       h.policy.ServiceCosts(),
	})
}

type purchaseRequestBody struct {
	UserKey  string `json:"user_key"`
	TokenQty int64  `json:"token_qty"`
	Currency string `json:"currency"`
}

// purchaseResponseBody is the POST /payment/purchase response shape
// (spec.md §6): the pending transaction plus the checkout URL/config.
type purchaseResponseBody struct {
	Reference    string                   `json:"reference"`
	PaymentURL   string                   `json:"payment_url"`
	TokenQty     int64                    `json:"token_qty"`
	Amount       string                   `json:"amount"`
	Currency     string                   `json:"currency"`
	Status       domain.TransactionStatus `json:"status"`
	ExpiresAt    time.Time                `json:"expires_at"`
	InlineConfig domain.InlineConfig      `json:"inline_config"`
}

// Purchase implements POST /payment/purchase.
func (h *Handlers) Purchase(w http.ResponseWriter, r *http.Request) {
	var body purchaseRequestBody
	if err := decodeJSON(r, &body); err != nil {
		Error(w, r, pkgerrors.ErrValidation.Wrap(err))
		return
	}

	resp, err := h.orchestrator.Purchase(r.Context(), orchestrator.PurchaseRequest{
		UserKey:  body.UserKey,
		TokenQty: body.TokenQty,
		Currency: body.Currency,
	})
	if err != nil {
		Error(w, r, err)
		return
	}

	Created(w, r, purchaseResponseBody{
		Reference:    resp.Reference,
		PaymentURL:   resp.PaymentURL,
		TokenQty:     resp.TokenQty,
		Amount:       resp.Amount.String(),
		Currency:     resp.Currency,
		Status:       resp.Status,
		ExpiresAt:    resp.ExpiresAt,
		InlineConfig: resp.InlineConfig,
	})
}

// Verify implements POST /payment/verify/{reference}.
func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if reference == "" {
		Error(w, r, pkgerrors.ErrValidation.WithDetails("field", "reference"))
		return
	}

	resp, err := h.orchestrator.Verify(r.Context(), reference)
	if err != nil {
		log.WithTraceID(r.Context(), h.logger).Error("verify failed", zap.String("reference", reference), zap.Error(err))
		Error(w, r, err)
		return
	}

	OK(w, r, resp)
}

// Balance implements GET /payment/balance/{user_key}.
func (h *Handlers) Balance(w http.ResponseWriter, r *http.Request) {
	userKey := chi.URLParam(r, "user_key")
	if userKey == "" {
		Error(w, r, pkgerrors.ErrValidation.WithDetails("field", "user_key"))
		return
	}

	balance, err := h.ledger.BalanceOf(r.Context(), userKey)
	if err != nil {
		Error(w, r, err)
		return
	}

	OK(w, r, balance)
}

const defaultHistoryLimit = 50

// balanceHistoryResponse is the GET /payment/balance/{user_key}/history
// response envelope (spec.md §6).
type balanceHistoryResponse struct {
	UserKey      string                    `json:"user_key"`
	History      []domain.ConsumptionEntry `json:"history"`
	TotalRecords int                       `json:"total_records"`
}

// BalanceHistory implements GET /payment/balance/{user_key}/history.
func (h *Handlers) BalanceHistory(w http.ResponseWriter, r *http.Request) {
	userKey := chi.URLParam(r, "user_key")
	if userKey == "" {
		Error(w, r, pkgerrors.ErrValidation.WithDetails("field", "user_key"))
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			Error(w, r, pkgerrors.ErrValidation.WithDetails("field", "limit"))
			return
		}
		limit = parsed
	}

	entries, err := h.ledger.ConsumptionHistory(r.Context(), userKey, limit)
	if err != nil {
		Error(w, r, err)
		return
	}

	OK(w, r, balanceHistoryResponse{
		UserKey:      userKey,
		History:      entries,
		TotalRecords: len(entries),
	})
}

// Transaction implements GET /payment/transaction/{reference}.
func (h *Handlers) Transaction(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if reference == "" {
		Error(w, r, pkgerrors.ErrValidation.WithDetails("field", "reference"))
		return
	}

	tx, err := h.orchestrator.Transaction(r.Context(), reference)
	if err != nil {
		Error(w, r, err)
		return
	}

	OK(w, r, tx)
}

type analyzeRequestBody struct {
	ServiceKind string `json:"service_kind"`
}

// Analyze implements POST /analyze/{work_item_id}, the representative
// consumption-gated endpoint described in spec.md §6. The caller identity
// travels in the user-key header, not the body.
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	workItemID := chi.URLParam(r, "work_item_id")

	userKey := r.Header.Get("user-key")
	if userKey == "" {
		Error(w, r, pkgerrors.ErrValidation.WithDetails("field", "user-key"))
		return
	}

	var body analyzeRequestBody
	if err := decodeJSON(r, &body); err != nil {
		Error(w, r, pkgerrors.ErrValidation.Wrap(err))
		return
	}
	if body.ServiceKind == "" {
		body.ServiceKind = string(domain.ServiceAnalysis)
	}

	result, err := h.guard.Consume(r.Context(), userKey, domain.ServiceKind(body.ServiceKind), workItemID)
	if err != nil {
		Error(w, r, err)
		return
	}

	OK(w, r, result)
}
