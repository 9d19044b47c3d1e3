package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/lstlabs/vaultgate/internal/config"
	"github.com/lstlabs/vaultgate/internal/ledger"
	"github.com/lstlabs/vaultgate/internal/middleware"
	"github.com/lstlabs/vaultgate/internal/vault"
	"github.com/shopspring/decimal"
)

func newTestRouter(t *testing.T) (*gin.Engine, *ledger.InMemoryLedger) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	accounts := vault.Accounts{
		Vault:        common.HexToAddress("0x0000000000000000000000000000000000000f01"),
		Silo:         common.HexToAddress("0x0000000000000000000000000000000000000f02"),
		Reserve:      common.HexToAddress("0x0000000000000000000000000000000000000f03"),
		FeeCollector: common.HexToAddress("0x0000000000000000000000000000000000000f04"),
	}
	underlying := ledger.NewInMemoryLedger()
	v := vault.New(vault.Params{
		VestingDuration: 8 * time.Hour,
		CooldownPeriod:  time.Hour,
	}, accounts, vault.Deps{
		Receipts:   ledger.NewInMemoryLedger(),
		Underlying: underlying,
		Sink:       &ledger.LedgerSink{Ledger: underlying, From: accounts.Vault},
		Funding:    &ledger.LedgerFunding{Ledger: underlying, Reserve: accounts.Reserve, Vault: accounts.Vault},
	})

	operators := middleware.NewOperatorTable([]config.OperatorConfig{
		{ID: "op-rewarder", APIKey: "rk", Roles: []string{"REWARDER"}},
	})

	h := NewVaultHandler(v)
	admin := NewAdminHandler(v)

	router := gin.New()
	router.Use(middleware.ErrorHandler())
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(operators))
	v1.POST("/deposits", h.Deposit)
	v1.GET("/rate", h.Rate)
	v1.GET("/requests/:owner", h.Requests)
	v1.POST("/admin/yield", admin.InjectYield)
	return router, underlying
}

func TestDepositEndpoint(t *testing.T) {
	router, underlying := newTestRouter(t)
	owner := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	if err := underlying.Mint(owner, decimal.RequireFromString("100")); err != nil {
		t.Fatal(err)
	}

	body, _ := json.Marshal(map[string]string{"owner": owner.Hex(), "amount": "100"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/deposits", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("deposit status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["receipt_minted"] != "100" {
		t.Fatalf("receipt_minted = %q", resp["receipt_minted"])
	}
}

func TestDepositEndpointRejectsBadAddress(t *testing.T) {
	router, _ := newTestRouter(t)

	body, _ := json.Marshal(map[string]string{"owner": "not-an-address", "amount": "100"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/deposits", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestYieldEndpointRequiresRole(t *testing.T) {
	router, underlying := newTestRouter(t)
	source := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	owner := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	_ = underlying.Mint(owner, decimal.RequireFromString("1000"))
	_ = underlying.Mint(source, decimal.RequireFromString("100"))

	// Seed supply so the injection itself is valid.
	depositBody, _ := json.Marshal(map[string]string{"owner": owner.Hex(), "amount": "1000"})
	seed := httptest.NewRequest(http.MethodPost, "/v1/deposits", bytes.NewReader(depositBody))
	seed.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(httptest.NewRecorder(), seed)

	yieldBody, _ := json.Marshal(map[string]string{"source": source.Hex(), "amount": "50"})

	// Anonymous caller lacks REWARDER.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/yield", bytes.NewReader(yieldBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/v1/admin/yield", bytes.NewReader(yieldBody))
	req2.Header.Set("Content-Type", "application/json")
	req2.Header.Set(middleware.HeaderOperatorKey, "rk")
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec2.Code, rec2.Body.String())
	}
}

func TestRequestsEndpointEmptyList(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/requests/0x00000000000000000000000000000000000000b1", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "[]" {
		t.Fatalf("body = %s, want empty array", rec.Body.String())
	}
}
