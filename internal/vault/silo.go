package vault

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/lstlabs/vaultgate/internal/ledger"
	"github.com/lstlabs/vaultgate/internal/pkg/apperrors"
	"github.com/shopspring/decimal"
)

var ErrClaimsPaused = apperrors.New(apperrors.ErrLiquidityPause,
	"claims paused: silo liquidity below threshold", nil)

// LiquidityTransition reports how an operation moved the silo across its
// liquidity threshold, so the vault can emit alert/recovery signals.
type LiquidityTransition int

const (
	LiquidityUnchanged LiquidityTransition = iota
	LiquidityAlertRaised
	LiquidityAlertCleared
)

// Silo segregates underlying owed to unstakers during cooldown. Funds sit
// on a dedicated ledger account; internal per-owner accounting must always
// sum to totalPending. The liquidity guard is a safety valve, not a circuit
// breaker: crossing below the threshold pauses claims automatically and
// recovering clears the pause without admin action.
type Silo struct {
	ledger       ledger.FungibleLedger
	account      common.Address
	vaultAccount common.Address
	feeCollector common.Address

	deposited      map[common.Address]decimal.Decimal
	totalPending   decimal.Decimal
	totalWithdrawn decimal.Decimal
	totalFees      decimal.Decimal
	// feePending holds collected fees whose collector transfer failed; they
	// stay on the silo account until a later operation forwards them.
	feePending decimal.Decimal

	thresholdBps int64
	claimsPaused bool

	earlyEnabled bool
	unlockFeeBps int64
	earlyLimit   *DailyLimit
}

type SiloConfig struct {
	Ledger       ledger.FungibleLedger
	Account      common.Address
	VaultAccount common.Address
	FeeCollector common.Address
	ThresholdBps int64
	EarlyEnabled bool
	UnlockFeeBps int64
	EarlyLimit   *DailyLimit
}

func NewSilo(cfg SiloConfig) *Silo {
	return &Silo{
		ledger:       cfg.Ledger,
		account:      cfg.Account,
		vaultAccount: cfg.VaultAccount,
		feeCollector: cfg.FeeCollector,
		deposited:    make(map[common.Address]decimal.Decimal),
		thresholdBps: cfg.ThresholdBps,
		earlyEnabled: cfg.EarlyEnabled,
		unlockFeeBps: cfg.UnlockFeeBps,
		earlyLimit:   cfg.EarlyLimit,
	}
}

func (s *Silo) Balance() decimal.Decimal { return s.ledger.BalanceOf(s.account) }

func (s *Silo) PendingClaims() decimal.Decimal { return s.totalPending }

func (s *Silo) TotalWithdrawn() decimal.Decimal { return s.totalWithdrawn }

func (s *Silo) CollectedFees() decimal.Decimal { return s.totalFees }

func (s *Silo) PendingFees() decimal.Decimal { return s.feePending }

func (s *Silo) ClaimsPaused() bool { return s.claimsPaused }

func (s *Silo) DepositedFor(owner common.Address) decimal.Decimal { return s.deposited[owner] }

// LiquidityRatio returns balance/pending in basis points, floored. An empty
// silo is treated as fully funded.
func (s *Silo) LiquidityRatio() int64 {
	if !s.totalPending.IsPositive() {
		return 10000
	}
	return s.Balance().Mul(tenK).Div(s.totalPending).Floor().IntPart()
}

// reevaluate applies the auto-guard. Strictly below threshold pauses; at or
// above it clears. Sitting exactly on the boundary counts as funded.
func (s *Silo) reevaluate() LiquidityTransition {
	ratio := s.LiquidityRatio()
	if ratio < s.thresholdBps {
		if !s.claimsPaused {
			s.claimsPaused = true
			return LiquidityAlertRaised
		}
		return LiquidityUnchanged
	}
	if s.claimsPaused {
		s.claimsPaused = false
		return LiquidityAlertCleared
	}
	return LiquidityUnchanged
}

// DepositFor moves amount from the vault account into the silo and credits
// the owner. The ledger transfer is the external step that can fail per
// item during batch processing; on failure nothing is credited.
func (s *Silo) DepositFor(owner common.Address, amount decimal.Decimal) (LiquidityTransition, error) {
	s.flushFees()
	if !amount.IsPositive() {
		return LiquidityUnchanged, apperrors.NewValidation("silo deposit must be positive")
	}
	if err := s.ledger.Transfer(s.vaultAccount, s.account, amount); err != nil {
		return LiquidityUnchanged, err
	}
	s.deposited[owner] = s.deposited[owner].Add(amount)
	s.totalPending = s.totalPending.Add(amount)
	return s.reevaluate(), nil
}

// WithdrawTo pays out a matured claim. Cooldown eligibility is enforced by
// the orchestration layer; the silo only guards liquidity and balances.
func (s *Silo) WithdrawTo(owner common.Address, amount decimal.Decimal) (LiquidityTransition, error) {
	if s.claimsPaused {
		return LiquidityUnchanged, ErrClaimsPaused
	}
	if !amount.IsPositive() {
		return LiquidityUnchanged, apperrors.NewValidation("withdraw amount must be positive")
	}
	if s.deposited[owner].LessThan(amount) {
		return LiquidityUnchanged, apperrors.Newf(apperrors.ErrValidation,
			"insufficient segregated balance: have %s, want %s", s.deposited[owner], amount)
	}
	s.debit(owner, amount)
	s.totalWithdrawn = s.totalWithdrawn.Add(amount)
	if err := s.ledger.Transfer(s.account, owner, amount); err != nil {
		// Roll the internal credit back; the ledger refused the payout.
		s.deposited[owner] = s.deposited[owner].Add(amount)
		s.totalPending = s.totalPending.Add(amount)
		s.totalWithdrawn = s.totalWithdrawn.Sub(amount)
		return LiquidityUnchanged, err
	}
	return s.reevaluate(), nil
}

// EarlyWithdraw releases segregated funds before cooldown for a fee. Gated
// by a feature flag and its own daily limit.
func (s *Silo) EarlyWithdraw(owner common.Address, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, LiquidityTransition, error) {
	s.flushFees()
	if !s.earlyEnabled {
		return decimal.Zero, decimal.Zero, LiquidityUnchanged,
			apperrors.NewStateConflict("early withdrawal disabled")
	}
	if s.claimsPaused {
		return decimal.Zero, decimal.Zero, LiquidityUnchanged, ErrClaimsPaused
	}
	if !amount.IsPositive() {
		return decimal.Zero, decimal.Zero, LiquidityUnchanged,
			apperrors.NewValidation("withdraw amount must be positive")
	}
	if s.deposited[owner].LessThan(amount) {
		return decimal.Zero, decimal.Zero, LiquidityUnchanged, apperrors.Newf(apperrors.ErrValidation,
			"insufficient segregated balance: have %s, want %s", s.deposited[owner], amount)
	}
	if s.earlyLimit != nil {
		if err := s.earlyLimit.Check(amount); err != nil {
			return decimal.Zero, decimal.Zero, LiquidityUnchanged, err
		}
	}

	fee := amount.Mul(decimal.NewFromInt(s.unlockFeeBps)).DivRound(tenK, rateScale)
	paid := amount.Sub(fee)

	s.debit(owner, amount)
	s.totalWithdrawn = s.totalWithdrawn.Add(paid)
	s.totalFees = s.totalFees.Add(fee)
	if err := s.ledger.Transfer(s.account, owner, paid); err != nil {
		s.deposited[owner] = s.deposited[owner].Add(amount)
		s.totalPending = s.totalPending.Add(amount)
		s.totalWithdrawn = s.totalWithdrawn.Sub(paid)
		s.totalFees = s.totalFees.Sub(fee)
		return decimal.Zero, decimal.Zero, LiquidityUnchanged, err
	}
	if fee.IsPositive() {
		if err := s.ledger.Transfer(s.account, s.feeCollector, fee); err != nil {
			// The owner leg already settled, so the withdrawal is final. The
			// fee stays on the silo account and gets forwarded later.
			s.feePending = s.feePending.Add(fee)
		}
	}
	if s.earlyLimit != nil {
		s.earlyLimit.Record(amount)
	}
	return paid, fee, s.reevaluate(), nil
}

// flushFees retries the forwarding of fees stranded by an earlier failed
// collector leg. Best effort; the backlog survives another failure.
func (s *Silo) flushFees() {
	if !s.feePending.IsPositive() {
		return
	}
	if err := s.ledger.Transfer(s.account, s.feeCollector, s.feePending); err != nil {
		return
	}
	s.feePending = decimal.Zero
}

func (s *Silo) debit(owner common.Address, amount decimal.Decimal) {
	rest := s.deposited[owner].Sub(amount)
	if rest.IsZero() {
		delete(s.deposited, owner)
	} else {
		s.deposited[owner] = rest
	}
	s.totalPending = s.totalPending.Sub(amount)
}

func (s *Silo) SetEarlyEnabled(enabled bool) { s.earlyEnabled = enabled }
