package ledger

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lstlabs/vaultgate/internal/pkg/apperrors"
	"github.com/shopspring/decimal"
)

// FungibleLedger is the external token ledger the vault core consumes.
// Calls are assumed atomic and non-reentrant from the core's perspective;
// the core commits its own bookkeeping before invoking any of these.
type FungibleLedger interface {
	Mint(to common.Address, amount decimal.Decimal) error
	BurnFrom(from common.Address, amount decimal.Decimal) error
	BalanceOf(addr common.Address) decimal.Decimal
	TotalSupply() decimal.Decimal
	Transfer(from, to common.Address, amount decimal.Decimal) error
}

// CustodianSink moves underlying funds to off-chain-controlled wallets.
// The vault tracks the accounting; custodian-side settlement is opaque.
type CustodianSink interface {
	Transfer(wallet common.Address, amount decimal.Decimal) error
}

// FundingSource supplies underlying liquidity for batch settlement. The
// production implementation pulls from the vault's reserve account; tests
// substitute failures here to exercise per-item isolation.
type FundingSource interface {
	Pull(amount decimal.Decimal) error
}

// InMemoryLedger is a process-local FungibleLedger used by the server in
// standalone mode and throughout the tests.
type InMemoryLedger struct {
	mu       sync.RWMutex
	balances map[common.Address]decimal.Decimal
	supply   decimal.Decimal
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		balances: make(map[common.Address]decimal.Decimal),
	}
}

func (l *InMemoryLedger) Mint(to common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return apperrors.NewValidation("mint amount must not be negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[to] = l.balances[to].Add(amount)
	l.supply = l.supply.Add(amount)
	return nil
}

func (l *InMemoryLedger) BurnFrom(from common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return apperrors.NewValidation("burn amount must not be negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from].LessThan(amount) {
		return apperrors.Newf(apperrors.ErrValidation, "insufficient balance: have %s, burn %s",
			l.balances[from], amount)
	}
	l.balances[from] = l.balances[from].Sub(amount)
	l.supply = l.supply.Sub(amount)
	return nil
}

func (l *InMemoryLedger) BalanceOf(addr common.Address) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[addr]
}

func (l *InMemoryLedger) TotalSupply() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply
}

func (l *InMemoryLedger) Transfer(from, to common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return apperrors.NewValidation("transfer amount must not be negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from].LessThan(amount) {
		return apperrors.Newf(apperrors.ErrValidation, "insufficient balance: have %s, transfer %s",
			l.balances[from], amount)
	}
	l.balances[from] = l.balances[from].Sub(amount)
	l.balances[to] = l.balances[to].Add(amount)
	return nil
}

// LedgerSink adapts a FungibleLedger account into a CustodianSink: custodian
// transfers debit the vault float account directly.
type LedgerSink struct {
	Ledger FungibleLedger
	From   common.Address
}

func (s *LedgerSink) Transfer(wallet common.Address, amount decimal.Decimal) error {
	return s.Ledger.Transfer(s.From, wallet, amount)
}

// LedgerFunding pulls settlement liquidity from a reserve account into the
// vault account.
type LedgerFunding struct {
	Ledger  FungibleLedger
	Reserve common.Address
	Vault   common.Address
}

func (f *LedgerFunding) Pull(amount decimal.Decimal) error {
	return f.Ledger.Transfer(f.Reserve, f.Vault, amount)
}
