package vault

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lstlabs/vaultgate/internal/ledger"
	"github.com/lstlabs/vaultgate/internal/model"
	"github.com/shopspring/decimal"
)

var (
	acctVault   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	acctSilo    = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	acctReserve = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	acctFees    = common.HexToAddress("0x00000000000000000000000000000000000000a4")

	alice = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol = common.HexToAddress("0x00000000000000000000000000000000000000b3")

	rewardFund = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	custody1   = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	custody2   = common.HexToAddress("0x00000000000000000000000000000000000000d2")
)

var (
	pAdmin    = &model.Principal{ID: "op-admin", Roles: []model.Role{model.RoleAdmin}}
	pManager  = &model.Principal{ID: "op-manager", Roles: []model.Role{model.RoleManager}}
	pRewarder = &model.Principal{ID: "op-rewarder", Roles: []model.Role{model.RoleRewarder}}
	pNobody   = &model.Principal{ID: "op-nobody"}
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type clock struct {
	t time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time { return c.t }

func (c *clock) Advance(dur time.Duration) { c.t = c.t.Add(dur) }

type recorder struct {
	events []*model.Event
}

func (r *recorder) Emit(e *model.Event) { r.events = append(r.events, e) }

func (r *recorder) count(t model.EventType) int {
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func testParams() Params {
	return Params{
		VestingDuration:       8 * time.Hour,
		MaxRateIncreaseBps:    1000,
		MaxPriceImpactBps:     2000,
		MaxTxBps:              0,
		MinUnstake:            decimal.Zero,
		CooldownPeriod:        time.Hour,
		LiquidityThresholdBps: 9500,
		EarlyWithdrawEnabled:  true,
		UnlockFeeBps:          50,
		MinFloatPercent:       d("10"),
		RecoveryDelay:         24 * time.Hour,
	}
}

type env struct {
	clk        *clock
	receipts   *ledger.InMemoryLedger
	underlying ledger.FungibleLedger
	rec        *recorder
	vault      *Vault
}

func newTestVault(t *testing.T, params Params, underlying ledger.FungibleLedger) *env {
	t.Helper()
	clk := newClock()
	receipts := ledger.NewInMemoryLedger()
	if underlying == nil {
		underlying = ledger.NewInMemoryLedger()
	}
	rec := &recorder{}
	v := New(params, Accounts{
		Vault:        acctVault,
		Silo:         acctSilo,
		Reserve:      acctReserve,
		FeeCollector: acctFees,
	}, Deps{
		Receipts:   receipts,
		Underlying: underlying,
		Sink:       &ledger.LedgerSink{Ledger: underlying, From: acctVault},
		Funding:    &ledger.LedgerFunding{Ledger: underlying, Reserve: acctReserve, Vault: acctVault},
		Emitter:    rec,
		Now:        clk.Now,
	})
	return &env{clk: clk, receipts: receipts, underlying: underlying, rec: rec, vault: v}
}

func (e *env) fund(t *testing.T, addr common.Address, amount string) {
	t.Helper()
	if err := e.underlying.Mint(addr, d(amount)); err != nil {
		t.Fatalf("fund %s: %v", addr.Hex(), err)
	}
}
