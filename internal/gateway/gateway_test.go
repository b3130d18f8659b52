package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zenalign/tokencore/internal/config"
	"github.com/zenalign/tokencore/internal/domain"
)

func testGateway(t *testing.T, oauthURL, baseURL string) *Gateway {
	t.Helper()
	cfg := config.GatewayConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		MerchantCode: "MERCH001",
		PayItemID:    "ITEM001",
		OAuthURL:     oauthURL,
		BaseURL:      baseURL,
		ReturnURL:    "https://app.example.com/return",
	}
	return New(cfg, zap.NewNop())
}

func TestAuthToken_CacheHit(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-1", ExpiresIn: 3600})
	}))
	defer srv.Close()

	g := testGateway(t, srv.URL, srv.URL)

	tok1, err := g.authToken(context.Background())
	if err != nil {
		t.Fatalf("authToken: %v", err)
	}
	tok2, err := g.authToken(context.Background())
	if err != nil {
		t.Fatalf("authToken: %v", err)
	}

	if tok1 != "tok-1" || tok2 != "tok-1" {
		t.Fatalf("expected cached token, got %q then %q", tok1, tok2)
	}
	if atomic.LoadInt32(&requests) != 1 {
		t.Fatalf("expected exactly 1 token request, got %d", requests)
	}
}

func TestAuthToken_ExpiryForcesRefresh(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		// ExpiresIn smaller than TokenExpiryBuffer means the token is
		// already "expired" the instant it's cached.
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-" + time.Now().String(), ExpiresIn: int64(n)})
	}))
	defer srv.Close()

	g := testGateway(t, srv.URL, srv.URL)
	g.cfg.OAuthURL = srv.URL

	if _, err := g.authToken(context.Background()); err != nil {
		t.Fatalf("authToken: %v", err)
	}
	if _, err := g.authToken(context.Background()); err != nil {
		t.Fatalf("authToken: %v", err)
	}

	if atomic.LoadInt32(&requests) != 2 {
		t.Fatalf("expected refresh on every call when tokens expire immediately, got %d requests", requests)
	}
}

func TestConcurrentAuthToken_SingleRefresh(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		time.Sleep(20 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-shared", ExpiresIn: 3600})
	}))
	defer srv.Close()

	g := testGateway(t, srv.URL, srv.URL)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.authToken(context.Background()); err != nil {
				t.Errorf("authToken: %v", err)
			}
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&requests) != 1 {
		t.Fatalf("expected exactly 1 token request across concurrent callers, got %d", requests)
	}
}

func TestVerify_MapsResponseCodes(t *testing.T) {
	cases := []struct {
		code string
		want domain.VerifyStatus
	}{
		{"00", domain.VerifyStatusSuccessful},
		{"09", domain.VerifyStatusPending},
		{"Z1", domain.VerifyStatusPending},
		{"01", domain.VerifyStatusFailed},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			oauth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok", ExpiresIn: 3600})
			}))
			defer oauth.Close()

			gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(verifyResponse{ResponseCode: tc.code, Message: "done"})
			}))
			defer gw.Close()

			g := testGateway(t, oauth.URL, gw.URL)

			result, err := g.Verify(context.Background(), "REF-1", decimal.NewFromInt(100))
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if result.Status != tc.want {
				t.Fatalf("expected status %q, got %q", tc.want, result.Status)
			}
		})
	}
}

func TestVerify_GatewayUnavailableOn5xx(t *testing.T) {
	oauth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok", ExpiresIn: 3600})
	}))
	defer oauth.Close()

	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer gw.Close()

	g := testGateway(t, oauth.URL, gw.URL)

	_, err := g.Verify(context.Background(), "REF-1", decimal.NewFromInt(100))
	if err == nil {
		t.Fatal("expected error on 5xx gateway response")
	}
}

func TestPaymentURL_IsDeterministicForSameInputs(t *testing.T) {
	g := testGateway(t, "https://oauth.example.com", "https://pay.example.com")

	u1, err := g.PaymentURL("REF-1", decimal.NewFromFloat(100.50), "KZT", "user-1", "https://app.example.com/return")
	if err != nil {
		t.Fatalf("PaymentURL: %v", err)
	}
	u2, err := g.PaymentURL("REF-1", decimal.NewFromFloat(100.50), "KZT", "user-1", "https://app.example.com/return")
	if err != nil {
		t.Fatalf("PaymentURL: %v", err)
	}
	if u1 != u2 {
		t.Fatalf("expected deterministic payment URL, got %q then %q", u1, u2)
	}
}
