package vault

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lstlabs/vaultgate/internal/ledger"
	"github.com/lstlabs/vaultgate/internal/model"
	"github.com/lstlabs/vaultgate/internal/pkg/apperrors"
	"github.com/lstlabs/vaultgate/internal/pkg/logger"
	"github.com/lstlabs/vaultgate/internal/pkg/metrics"
	"github.com/shopspring/decimal"
)

// Emitter receives the vault's observable signals. Implementations must not
// block; the journal service buffers internally.
type Emitter interface {
	Emit(e *model.Event)
}

// Params collects every tunable the vault core consumes. Zero decimal caps
// disable the corresponding limit.
type Params struct {
	VestingDuration    time.Duration
	MaxRateIncreaseBps int64
	MaxPriceImpactBps  int64

	MinDeposit       decimal.Decimal
	MaxGlobalDeposit decimal.Decimal
	MaxUserDeposit   decimal.Decimal
	MaxTxBps         int64

	DailyDepositLimit  decimal.Decimal
	DailyWithdrawLimit decimal.Decimal
	DailyEarlyLimit    decimal.Decimal

	MinUnstake     decimal.Decimal
	CooldownPeriod time.Duration
	SweepEvery     int
	SweepRetention time.Duration

	LiquidityThresholdBps int64
	EarlyWithdrawEnabled  bool
	UnlockFeeBps          int64

	MaxCustodians   int
	MinFloatPercent decimal.Decimal

	RecoveryDelay time.Duration
}

// Accounts are the ledger addresses the vault operates.
type Accounts struct {
	Vault        common.Address
	Silo         common.Address
	Reserve      common.Address
	FeeCollector common.Address
}

// Vault is the aggregate root. One mutex serializes every public mutating
// operation: each call is a single atomic transaction, with internal
// bookkeeping committed before any external ledger or custodian effect.
type Vault struct {
	mu sync.Mutex

	params   Params
	accounts Accounts

	rate      *RateEngine
	queue     *Queue
	silo      *Silo
	emergency *Emergency

	depositLimit  *DailyLimit
	withdrawLimit *DailyLimit
	txCap         *TxCapGuard

	receipts   ledger.FungibleLedger
	underlying ledger.FungibleLedger
	sink       ledger.CustodianSink
	funding    ledger.FundingSource

	custodians          []model.CustodianAllocation
	totalCustodianFunds decimal.Decimal

	lastDepositAt map[common.Address]time.Time

	authz   model.AuthorizationContext
	emitter Emitter

	now func() time.Time
	log *slog.Logger
}

type Deps struct {
	Receipts   ledger.FungibleLedger
	Underlying ledger.FungibleLedger
	Sink       ledger.CustodianSink
	Funding    ledger.FundingSource
	Authz      model.AuthorizationContext
	Emitter    Emitter
	Now        func() time.Time
}

func New(params Params, accounts Accounts, deps Deps) *Vault {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if params.MaxCustodians <= 0 {
		params.MaxCustodians = 10
	}
	authz := deps.Authz
	if authz == nil {
		authz = model.StaticAuthz{}
	}

	v := &Vault{
		params:        params,
		accounts:      accounts,
		rate:          NewRateEngine(params.VestingDuration, params.MaxRateIncreaseBps, params.MaxPriceImpactBps, now),
		queue:         NewQueue(params.SweepEvery, params.SweepRetention, now),
		emergency:     NewEmergency(params.RecoveryDelay, now),
		depositLimit:  NewDailyLimit("deposit", params.DailyDepositLimit, 24*time.Hour, now),
		withdrawLimit: NewDailyLimit("withdraw", params.DailyWithdrawLimit, 24*time.Hour, now),
		txCap:         NewTxCapGuard(params.MaxTxBps),
		receipts:      deps.Receipts,
		underlying:    deps.Underlying,
		sink:          deps.Sink,
		funding:       deps.Funding,
		lastDepositAt: make(map[common.Address]time.Time),
		authz:         authz,
		emitter:       deps.Emitter,
		now:           now,
		log:           logger.Component("vault"),
	}
	v.silo = NewSilo(SiloConfig{
		Ledger:       deps.Underlying,
		Account:      accounts.Silo,
		VaultAccount: accounts.Vault,
		FeeCollector: accounts.FeeCollector,
		ThresholdBps: params.LiquidityThresholdBps,
		EarlyEnabled: params.EarlyWithdrawEnabled,
		UnlockFeeBps: params.UnlockFeeBps,
		EarlyLimit:   NewDailyLimit("early_withdraw", params.DailyEarlyLimit, 24*time.Hour, now),
	})
	v.depositLimit.OnReset(v.onLimitReset)
	v.withdrawLimit.OnReset(v.onLimitReset)
	return v
}

func (v *Vault) onLimitReset(name string) {
	v.emit(model.NewEvent(model.EventDailyLimitReset, "", map[string]string{"limit": name}))
}

func (v *Vault) emit(e *model.Event) {
	if v.emitter != nil {
		v.emitter.Emit(e)
	}
}

func (v *Vault) requireRole(p *model.Principal, roles ...model.Role) error {
	for _, role := range roles {
		if v.authz.HasRole(role, p) {
			return nil
		}
	}
	return apperrors.New(apperrors.ErrAuthFailed, "caller lacks the required role", nil)
}

// ---- read API ----

func (v *Vault) CurrentRate() decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rate.CurrentRate()
}

func (v *Vault) RateStatus() model.RateResponse {
	v.mu.Lock()
	defer v.mu.Unlock()
	return model.RateResponse{
		CurrentRate: v.rate.CurrentRate(),
		TargetRate:  v.rate.TargetRate(),
		Vesting:     v.rate.Vesting(),
	}
}

func (v *Vault) SiloStatus() model.SiloResponse {
	v.mu.Lock()
	defer v.mu.Unlock()
	return model.SiloResponse{
		Balance:        v.silo.Balance(),
		PendingClaims:  v.silo.PendingClaims(),
		CollectedFees:  v.silo.CollectedFees(),
		TotalWithdrawn: v.silo.TotalWithdrawn(),
		LiquidityRatio: v.silo.LiquidityRatio(),
		ClaimsPaused:   v.silo.ClaimsPaused(),
	}
}

func (v *Vault) RequestsFor(owner common.Address) []*model.UnstakeRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.queue.RequestsFor(owner)
}

func (v *Vault) EmergencyMode() model.EmergencyMode {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.emergency.Mode()
}

func (v *Vault) QueueLength() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.queue.Length()
}

func (v *Vault) TotalCustodianFunds() decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalCustodianFunds
}

func (v *Vault) Custodians() []model.CustodianAllocation {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]model.CustodianAllocation, len(v.custodians))
	copy(out, v.custodians)
	return out
}

// ---- yield injection ----

// InjectYield pays yield into the pool and starts a new vesting epoch. The
// underlying moves rewarder -> vault, with the fee forwarded to the fee
// collector. Bookkeeping commits before the transfers.
func (v *Vault) InjectYield(p *model.Principal, rewarder common.Address, amount, feePercent decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if err := v.requireRole(p, model.RoleRewarder, model.RoleAdmin); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.emergency.Mode() == model.ModeFullPause {
		return decimal.Zero, decimal.Zero, apperrors.NewStateConflict("vault fully paused")
	}

	newTarget, fee, err := v.rate.InjectYield(amount, feePercent, v.receipts.TotalSupply())
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	if err := v.underlying.Transfer(rewarder, v.accounts.Vault, amount); err != nil {
		return decimal.Zero, decimal.Zero, apperrors.Wrap(err)
	}
	if fee.IsPositive() {
		if err := v.underlying.Transfer(v.accounts.Vault, v.accounts.FeeCollector, fee); err != nil {
			return decimal.Zero, decimal.Zero, apperrors.Wrap(err)
		}
	}

	rateF, _ := newTarget.Float64()
	metrics.ExchangeRate.Set(rateF)
	v.emit(model.NewEvent(model.EventYieldInjected, p.ID, map[string]string{
		"amount": amount.String(),
		"fee":    fee.String(),
	}))
	v.emit(model.NewEvent(model.EventRateUpdated, p.ID, map[string]string{
		"target_rate": newTarget.String(),
	}))
	v.log.Info("yield injected", "amount", amount.String(), "fee", fee.String(),
		"target_rate", newTarget.String())
	return newTarget, fee, nil
}

// ---- custodian administration ----

// SetCustodian adds or updates a custodian allocation. The sum of all
// allocations must leave at least MinFloatPercent on hand.
func (v *Vault) SetCustodian(p *model.Principal, wallet common.Address, percent decimal.Decimal) error {
	if err := v.requireRole(p, model.RoleAdmin); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if wallet == (common.Address{}) {
		return apperrors.NewValidation("custodian wallet must not be the zero address")
	}
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return apperrors.NewValidation("allocation percent must be within [0, 100]")
	}

	sum := percent
	replaced := false
	for _, c := range v.custodians {
		if c.Wallet == wallet {
			replaced = true
			continue
		}
		sum = sum.Add(c.Percent)
	}
	if !replaced && len(v.custodians) >= v.params.MaxCustodians {
		return apperrors.Newf(apperrors.ErrValidation, "custodian list full (max %d)", v.params.MaxCustodians)
	}
	if sum.Add(v.params.MinFloatPercent).GreaterThan(hundred) {
		return apperrors.NewValidation("custodian allocations leave insufficient float")
	}

	if replaced {
		for i := range v.custodians {
			if v.custodians[i].Wallet == wallet {
				v.custodians[i].Percent = percent
				break
			}
		}
	} else {
		v.custodians = append(v.custodians, model.CustodianAllocation{Wallet: wallet, Percent: percent})
	}
	return nil
}

func (v *Vault) RemoveCustodian(p *model.Principal, wallet common.Address) error {
	if err := v.requireRole(p, model.RoleAdmin); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	for i, c := range v.custodians {
		if c.Wallet == wallet {
			v.custodians = append(v.custodians[:i], v.custodians[i+1:]...)
			return nil
		}
	}
	return apperrors.New(apperrors.ErrNotFound, "custodian not configured", nil)
}

// ---- emergency administration ----

func (v *Vault) SetEmergencyMode(p *model.Principal, mode model.EmergencyMode) error {
	if err := v.requireRole(p, model.RoleAdmin, model.RoleEmergency); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.emergency.SetMode(mode); err != nil {
		return err
	}
	metrics.EmergencyTransitions.WithLabelValues(string(mode)).Inc()
	v.emit(model.NewEvent(model.EventEmergencyChanged, p.ID, map[string]string{"mode": string(mode)}))
	v.log.Warn("emergency mode changed", "mode", string(mode), "actor", p.ID)
	return nil
}

func (v *Vault) TriggerCircuitBreaker(p *model.Principal) error {
	if err := v.requireRole(p, model.RoleEmergency, model.RoleAdmin); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.emergency.TriggerCircuitBreaker(); err != nil {
		return err
	}
	metrics.EmergencyTransitions.WithLabelValues(string(model.ModeFullPause)).Inc()
	v.emit(model.NewEvent(model.EventEmergencyChanged, p.ID, map[string]string{"mode": string(model.ModeFullPause)}))
	v.emit(model.NewEvent(model.EventRecoveryScheduled, p.ID, nil))
	v.log.Warn("circuit breaker triggered", "actor", p.ID)
	return nil
}

func (v *Vault) ScheduleRecovery(p *model.Principal) error {
	if err := v.requireRole(p, model.RoleEmergency, model.RoleAdmin); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.emergency.ScheduleRecovery(); err != nil {
		return err
	}
	v.emit(model.NewEvent(model.EventRecoveryScheduled, p.ID, nil))
	return nil
}

func (v *Vault) ActivateRecovery(p *model.Principal) error {
	if err := v.requireRole(p, model.RoleEmergency, model.RoleAdmin); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.emergency.ActivateRecovery(); err != nil {
		return err
	}
	v.emit(model.NewEvent(model.EventRecoveryActivated, p.ID, nil))
	v.log.Warn("recovery mode activated", "actor", p.ID)
	return nil
}

func (v *Vault) DeactivateRecovery(p *model.Principal) error {
	if err := v.requireRole(p, model.RoleAdmin); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.emergency.DeactivateRecovery(); err != nil {
		return err
	}
	v.emit(model.NewEvent(model.EventRecoveryCleared, p.ID, nil))
	return nil
}

func (v *Vault) ResumeOperations(p *model.Principal) error {
	if err := v.requireRole(p, model.RoleAdmin); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.emergency.ResumeOperations(); err != nil {
		return err
	}
	metrics.EmergencyTransitions.WithLabelValues(string(model.ModeNormal)).Inc()
	v.emit(model.NewEvent(model.EventEmergencyChanged, p.ID, map[string]string{"mode": string(model.ModeNormal)}))
	return nil
}

// emitLiquidity translates a silo transition into signals.
func (v *Vault) emitLiquidity(t LiquidityTransition) {
	switch t {
	case LiquidityAlertRaised:
		metrics.LiquidityAlerts.WithLabelValues("raised").Inc()
		v.emit(model.NewEvent(model.EventLiquidityAlert, "", map[string]string{
			"ratio_bps": decimal.NewFromInt(v.silo.LiquidityRatio()).String(),
		}))
		v.log.Warn("silo liquidity below threshold, claims paused",
			"ratio_bps", v.silo.LiquidityRatio())
	case LiquidityAlertCleared:
		metrics.LiquidityAlerts.WithLabelValues("cleared").Inc()
		v.emit(model.NewEvent(model.EventLiquidityRecovered, "", nil))
		v.log.Info("silo liquidity recovered, claims resumed")
	}
}

func (v *Vault) syncGauges() {
	metrics.QueueLength.Set(float64(v.queue.Length()))
	pending, _ := v.silo.PendingClaims().Float64()
	metrics.PendingClaims.Set(pending)
}
