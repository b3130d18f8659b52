// Package gateway implements GatewayClient (spec.md §4.2): the OAuth2
// client-credentials token cache and the three gateway operations
// (payment_url, verify, inline_config). The token-cache locking pattern —
// RLock fast path, Lock + double-check on refresh — is grounded on the
// teacher's internal/adapters/payment/epayment/auth.go.
package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/zenalign/tokencore/internal/config"
	"github.com/zenalign/tokencore/internal/domain"
	"github.com/zenalign/tokencore/pkg/crypto"
	"github.com/zenalign/tokencore/pkg/errors"
)

// TokenExpiryBuffer is the safety margin subtracted from the OAuth token's
// reported lifetime before it is considered due for refresh.
const TokenExpiryBuffer = 5 * time.Minute

// tracerName scopes spans emitted by this package in the exported trace.
const tracerName = "tokencore/gateway"

// tokenResponse is the OAuth2 token endpoint's JSON response shape.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// verifyResponse is the gateway's transaction-verification response shape
// (spec.md §6): ResponseCode drives the successful/pending/failed mapping.
type verifyResponse struct {
	ResponseCode string `json:"ResponseCode"`
	Message      string `json:"Message"`
}

// Gateway is the concrete domain.Gateway implementation.
type Gateway struct {
	cfg    config.GatewayConfig
	client *resty.Client
	logger *zap.Logger

	tokenMutex  sync.RWMutex
	token       string
	tokenExpiry time.Time
}

// New constructs a Gateway with a resty client bounded by a 30s timeout,
// mirroring the teacher's DefaultHTTPTimeout.
func New(cfg config.GatewayConfig, logger *zap.Logger) *Gateway {
	client := resty.New().SetTimeout(30 * time.Second)
	return &Gateway{cfg: cfg, client: client, logger: logger}
}

var _ domain.Gateway = (*Gateway)(nil)

// authToken returns a cached OAuth2 access token, refreshing it when the
// remaining validity drops below TokenExpiryBuffer. Readers that observe a
// fresh-enough token never acquire the write lock; refresh is serialized so
// only one request is ever in flight.
func (g *Gateway) authToken(ctx context.Context) (string, error) {
	g.tokenMutex.RLock()
	if g.token != "" && time.Now().Before(g.tokenExpiry) {
		token := g.token
		g.tokenMutex.RUnlock()
		return token, nil
	}
	g.tokenMutex.RUnlock()

	g.tokenMutex.Lock()
	defer g.tokenMutex.Unlock()

	// Double-check: another goroutine may have refreshed while we waited
	// for the write lock.
	if g.token != "" && time.Now().Before(g.tokenExpiry) {
		return g.token, nil
	}

	basicAuth := base64.StdEncoding.EncodeToString([]byte(g.cfg.ClientID + ":" + g.cfg.ClientSecret))

	var tr tokenResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Basic "+basicAuth).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&tr).
		Post(g.cfg.OAuthURL)
	if err != nil {
		g.logger.Error("gateway: token request failed", zap.Error(err))
		return "", errors.ErrGatewayUnavailable.Wrap(err)
	}
	if resp.IsError() {
		g.logger.Error("gateway: token request rejected", zap.Int("status", resp.StatusCode()))
		return "", errors.ErrGatewayUnavailable.WithDetails("http_status", resp.StatusCode())
	}

	g.token = tr.AccessToken
	g.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - TokenExpiryBuffer)

	return g.token, nil
}

// amountMinorUnits converts a decimal Money amount to integer minor units
// (e.g. 100.50 -> 10050) assuming two fractional digits.
func amountMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// PaymentURL implements domain.Gateway. Pure computation, no network I/O.
func (g *Gateway) PaymentURL(reference string, amount decimal.Decimal, currency, userKey, returnURL string) (string, error) {
	minor := amountMinorUnits(amount)
	hash := crypto.SHA512Hash(fmt.Sprintf("%s|%s|%d|%s|%s", g.cfg.PayItemID, reference, minor, returnURL, g.cfg.ClientSecret))

	q := url.Values{}
	q.Set("merchant_code", g.cfg.MerchantCode)
	q.Set("pay_item_id", g.cfg.PayItemID)
	q.Set("amount", strconv.FormatInt(minor, 10))
	q.Set("currency", currency)
	q.Set("site_redirect_url", returnURL)
	q.Set("txn_ref", reference)
	q.Set("customer", userKey)
	q.Set("hash", hash)

	return fmt.Sprintf("%s/checkout?%s", g.cfg.BaseURL, q.Encode()), nil
}

// InlineConfig implements domain.Gateway. Pure computation, no network I/O.
func (g *Gateway) InlineConfig(reference string, amount decimal.Decimal, userKey, returnURL string) (domain.InlineConfig, error) {
	minor := amountMinorUnits(amount)
	hash := crypto.SHA512Hash(fmt.Sprintf("%s|%s|%d|%s|%s", g.cfg.PayItemID, reference, minor, returnURL, g.cfg.ClientSecret))

	return domain.InlineConfig{
		MerchantCode: g.cfg.MerchantCode,
		PayItemID:    g.cfg.PayItemID,
		Reference:    reference,
		AmountMinor:  minor,
		UserKey:      userKey,
		ReturnURL:    returnURL,
		Hash:         hash,
	}, nil
}

// Verify implements domain.Gateway. Issues exactly one bounded GET to the
// gateway's verification endpoint and maps the response code per
// spec.md §4.2: "00" successful, "09"/"Z1" pending, anything else failed.
// Network/5xx errors surface as ErrGatewayUnavailable (retryable); a
// gateway-reported rejection never reaches this function as an error —
// it's returned as VerifyStatusFailed, a value the orchestrator interprets.
func (g *Gateway) Verify(ctx context.Context, reference string, amount decimal.Decimal) (domain.VerifyResult, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "gateway.verify")
	defer span.End()
	span.SetAttributes(attribute.String("payment.reference", reference))

	token, err := g.authToken(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "auth token fetch failed")
		return domain.VerifyResult{}, err
	}

	minor := amountMinorUnits(amount)
	hash := crypto.SHA512Hash(fmt.Sprintf("%s|%d|%s", g.cfg.ClientSecret, minor, reference))

	var vr verifyResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetHeader("Hash", hash).
		SetQueryParams(map[string]string{
			"merchantcode":        g.cfg.MerchantCode,
			"transactionreference": reference,
			"amount":              strconv.FormatInt(minor, 10),
		}).
		SetResult(&vr).
		Get(g.cfg.BaseURL + "/collections/api/v1/gettransaction.json")
	if err != nil {
		g.logger.Error("gateway: verify request failed", zap.String("reference", reference), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "verify request failed")
		return domain.VerifyResult{}, errors.ErrGatewayUnavailable.Wrap(err)
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		g.logger.Error("gateway: verify 5xx", zap.String("reference", reference), zap.Int("status", resp.StatusCode()))
		span.SetStatus(codes.Error, "verify 5xx response")
		return domain.VerifyResult{}, errors.ErrGatewayUnavailable.WithDetails("http_status", resp.StatusCode())
	}

	status := mapResponseCode(vr.ResponseCode)
	g.logger.Info("gateway: verify completed",
		zap.String("reference", reference),
		zap.String("response_code", vr.ResponseCode),
		zap.String("status", string(status)),
	)
	span.SetAttributes(attribute.String("payment.status", string(status)))
	span.SetStatus(codes.Ok, "verify completed")

	return domain.VerifyResult{
		Status:         status,
		GatewayPayload: string(resp.Body()),
	}, nil
}

func mapResponseCode(code string) domain.VerifyStatus {
	switch code {
	case "00":
		return domain.VerifyStatusSuccessful
	case "09", "Z1":
		return domain.VerifyStatusPending
	default:
		return domain.VerifyStatusFailed
	}
}
