package vault

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lstlabs/vaultgate/internal/ledger"
	"github.com/lstlabs/vaultgate/internal/model"
	"github.com/lstlabs/vaultgate/internal/pkg/apperrors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnstakeLifecycle(t *testing.T) {
	e := newTestVault(t, testParams(), nil)
	e.fund(t, alice, "1000")
	e.fund(t, rewardFund, "100")

	_, err := e.vault.Deposit(pNobody, alice, d("1000"), d("0"))
	require.NoError(t, err)

	// The deposit fairness window must elapse before the holder may exit.
	e.clk.Advance(8 * time.Hour)
	_, _, err = e.vault.InjectYield(pRewarder, rewardFund, d("100"), d("10"))
	require.NoError(t, err)
	assert.True(t, e.underlying.BalanceOf(acctFees).Equal(d("10")))

	// Exit halfway through vesting: redeemed at 1.045, the unvested 45
	// forfeited back into the carry.
	e.clk.Advance(4 * time.Hour)
	req, err := e.vault.RequestUnstake(pNobody, alice, d("1000"), d("0"))
	require.NoError(t, err)
	assert.True(t, req.UnderlyingAmount.Equal(d("1045")), "underlying = %s", req.UnderlyingAmount)
	assert.Equal(t, model.StatusQueued, req.Status)
	assert.True(t, e.receipts.BalanceOf(alice).IsZero(), "receipts burn immediately")
	assert.True(t, e.receipts.TotalSupply().IsZero())

	affected, err := e.vault.MarkForProcessing(pManager, []uint64{req.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, affected)

	e.fund(t, acctReserve, "1045")
	processed, remaining, err := e.vault.ProcessBatch(pManager, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, 0, remaining)
	assert.True(t, e.underlying.BalanceOf(acctSilo).Equal(d("1045")))

	// Cooldown runs from the request timestamp.
	if _, err := e.vault.Claim(pNobody, alice); !apperrors.IsType(err, apperrors.ErrNotFound) {
		t.Fatalf("claim before cooldown must find nothing, got %v", err)
	}
	e.clk.Advance(time.Hour)
	paid, err := e.vault.Claim(pNobody, alice)
	require.NoError(t, err)
	assert.True(t, paid.Equal(d("1045")))
	assert.True(t, e.underlying.BalanceOf(alice).Equal(d("1045")))
	assert.Equal(t, 0, e.vault.QueueLength())
	assert.Equal(t, 1, e.rec.count(model.EventUnstakeClaimed))
}

func TestUnstakeGuards(t *testing.T) {
	params := testParams()
	params.MinUnstake = d("10")
	params.DailyWithdrawLimit = d("500")
	e := newTestVault(t, params, nil)
	e.fund(t, alice, "1000")
	_, err := e.vault.Deposit(pNobody, alice, d("1000"), d("0"))
	require.NoError(t, err)

	// Fairness lock: the depositor cannot exit within the vesting window of
	// their own entry.
	if _, err := e.vault.RequestUnstake(pNobody, alice, d("100"), d("0")); !apperrors.IsType(err, apperrors.ErrStateConflict) {
		t.Fatalf("expected fairness lock rejection, got %v", err)
	}
	e.clk.Advance(8 * time.Hour)

	if _, err := e.vault.RequestUnstake(pNobody, alice, d("5"), d("0")); !apperrors.IsType(err, apperrors.ErrValidation) {
		t.Fatalf("expected min unstake rejection, got %v", err)
	}
	if _, err := e.vault.RequestUnstake(pNobody, alice, d("1001"), d("0")); !apperrors.IsType(err, apperrors.ErrValidation) {
		t.Fatalf("expected balance rejection, got %v", err)
	}
	if _, err := e.vault.RequestUnstake(pNobody, alice, d("100"), d("101")); !apperrors.IsType(err, apperrors.ErrValidation) {
		t.Fatalf("expected slippage rejection, got %v", err)
	}
	if _, err := e.vault.RequestUnstake(pNobody, alice, d("600"), d("0")); !apperrors.IsType(err, apperrors.ErrLimitExceeded) {
		t.Fatalf("expected daily withdraw limit rejection, got %v", err)
	}

	_, err = e.vault.RequestUnstake(pNobody, alice, d("500"), d("0"))
	require.NoError(t, err)
	assert.True(t, e.receipts.BalanceOf(alice).Equal(d("500")))
}

func TestCancelUnstake(t *testing.T) {
	e := newTestVault(t, testParams(), nil)
	e.fund(t, alice, "1000")
	e.fund(t, rewardFund, "60")
	_, err := e.vault.Deposit(pNobody, alice, d("1000"), d("0"))
	require.NoError(t, err)
	e.clk.Advance(8 * time.Hour)

	_, err = e.vault.RequestUnstake(pNobody, alice, d("400"), d("0"))
	require.NoError(t, err)
	require.True(t, e.receipts.BalanceOf(alice).Equal(d("600")))

	// A vesting epoch freezes cancellation: the carry credited on exit
	// cannot be unwound mid-epoch.
	_, _, err = e.vault.InjectYield(pRewarder, rewardFund, d("60"), d("0"))
	require.NoError(t, err)
	if err := e.vault.CancelUnstake(pNobody, alice); !apperrors.IsType(err, apperrors.ErrStateConflict) {
		t.Fatalf("expected cancel frozen during vesting, got %v", err)
	}

	e.clk.Advance(8 * time.Hour)
	require.NoError(t, e.vault.CancelUnstake(pNobody, alice))
	assert.True(t, e.receipts.BalanceOf(alice).Equal(d("1000")), "receipts restored")
	assert.Equal(t, 0, e.vault.QueueLength())

	if err := e.vault.CancelUnstake(pNobody, alice); !apperrors.IsType(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found on second cancel, got %v", err)
	}
}

func TestCancelReturnsForfeitedCarry(t *testing.T) {
	e := newTestVault(t, testParams(), nil)
	e.fund(t, alice, "1000")
	e.fund(t, rewardFund, "200")
	_, err := e.vault.Deposit(pNobody, alice, d("1000"), d("0"))
	require.NoError(t, err)
	e.clk.Advance(8 * time.Hour)
	_, _, err = e.vault.InjectYield(pRewarder, rewardFund, d("100"), d("10"))
	require.NoError(t, err)

	// Exit halfway through vesting forfeits the unvested 45 into the carry.
	e.clk.Advance(4 * time.Hour)
	_, err = e.vault.RequestUnstake(pNobody, alice, d("1000"), d("0"))
	require.NoError(t, err)
	require.True(t, e.vault.rate.Carry().Equal(d("45")), "carry = %s", e.vault.rate.Carry())

	// Cancelling after the vest restores receipts at full target value, so
	// the forfeited credit must leave the carry with them.
	e.clk.Advance(4 * time.Hour)
	require.NoError(t, e.vault.CancelUnstake(pNobody, alice))
	assert.True(t, e.vault.rate.Carry().IsZero(), "carry = %s", e.vault.rate.Carry())

	// The next epoch distributes only its own yield: 90 over 1000 receipts.
	_, _, err = e.vault.InjectYield(pRewarder, rewardFund, d("100"), d("10"))
	require.NoError(t, err)
	assert.True(t, e.vault.rate.TargetRate().Equal(d("1.18")),
		"target = %s", e.vault.rate.TargetRate())
}

// burnFailLedger refuses burns, simulating a receipt ledger that rejects
// the first external leg of an unstake.
type burnFailLedger struct {
	*ledger.InMemoryLedger
	fail bool
}

func (f *burnFailLedger) BurnFrom(from common.Address, amount decimal.Decimal) error {
	if f.fail {
		return errors.New("burn rejected")
	}
	return f.InMemoryLedger.BurnFrom(from, amount)
}

func TestRequestUnstakeUnwindsOnBurnFailure(t *testing.T) {
	params := testParams()
	params.DailyWithdrawLimit = d("500")
	clk := newClock()
	receipts := &burnFailLedger{InMemoryLedger: ledger.NewInMemoryLedger()}
	underlying := ledger.NewInMemoryLedger()
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
		Now:        clk.Now,
	})

	require.NoError(t, underlying.Mint(alice, d("600")))
	_, err := v.Deposit(pNobody, alice, d("600"), d("0"))
	require.NoError(t, err)
	clk.Advance(8 * time.Hour)

	receipts.fail = true
	_, err = v.RequestUnstake(pNobody, alice, d("300"), d("0"))
	require.Error(t, err)
	assert.Equal(t, 0, v.QueueLength(), "failed request must not stay queued")

	// The failed attempt returned its window capacity: the full 500 still
	// fits once the ledger recovers.
	receipts.fail = false
	_, err = v.RequestUnstake(pNobody, alice, d("500"), d("0"))
	assert.NoError(t, err, "failed burn must not consume the withdraw window")
}

func TestCancelRejectedOnceMarked(t *testing.T) {
	e := newTestVault(t, testParams(), nil)
	e.fund(t, alice, "100")
	_, err := e.vault.Deposit(pNobody, alice, d("100"), d("0"))
	require.NoError(t, err)
	e.clk.Advance(8 * time.Hour)

	req, err := e.vault.RequestUnstake(pNobody, alice, d("100"), d("0"))
	require.NoError(t, err)
	_, err = e.vault.MarkForProcessing(pManager, []uint64{req.ID})
	require.NoError(t, err)

	if err := e.vault.CancelUnstake(pNobody, alice); !apperrors.IsType(err, apperrors.ErrStateConflict) {
		t.Fatalf("marked requests are committed, got %v", err)
	}
}

// flakyLedger refuses transfers of a specific amount into the silo account,
// simulating one bad settlement leg inside a batch.
type flakyLedger struct {
	*ledger.InMemoryLedger
	failAmount decimal.Decimal
}

func (f *flakyLedger) Transfer(from, to common.Address, amount decimal.Decimal) error {
	if !f.failAmount.IsZero() && to == acctSilo && amount.Equal(f.failAmount) {
		return errors.New("settlement leg rejected")
	}
	return f.InMemoryLedger.Transfer(from, to, amount)
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	flaky := &flakyLedger{InMemoryLedger: ledger.NewInMemoryLedger()}
	e := newTestVault(t, testParams(), flaky)
	e.fund(t, alice, "500")
	e.fund(t, bob, "500")

	_, err := e.vault.Deposit(pNobody, alice, d("500"), d("0"))
	require.NoError(t, err)
	_, err = e.vault.Deposit(pNobody, bob, d("500"), d("0"))
	require.NoError(t, err)
	e.clk.Advance(8 * time.Hour)

	reqA, err := e.vault.RequestUnstake(pNobody, alice, d("200"), d("0"))
	require.NoError(t, err)
	reqB, err := e.vault.RequestUnstake(pNobody, bob, d("300"), d("0"))
	require.NoError(t, err)
	_, err = e.vault.MarkForProcessing(pManager, []uint64{reqA.ID, reqB.ID})
	require.NoError(t, err)

	e.fund(t, acctReserve, "500")
	flaky.failAmount = d("300")

	processed, remaining, err := e.vault.ProcessBatch(pManager, 10)
	require.NoError(t, err, "one failed leg must not fail the batch")
	assert.Equal(t, 1, processed)
	assert.Equal(t, 1, remaining)
	assert.Equal(t, model.StatusProcessed, e.vault.RequestsFor(alice)[0].Status)
	assert.Equal(t, model.StatusProcessing, e.vault.RequestsFor(bob)[0].Status)
	assert.True(t, e.underlying.BalanceOf(acctReserve).Equal(d("300")), "failed leg funds return to reserve")
	assert.Equal(t, 1, e.rec.count(model.EventUnstakeFailed))

	// The stuck request settles in a later batch once the leg recovers.
	flaky.failAmount = decimal.Zero
	processed, remaining, err = e.vault.ProcessBatch(pManager, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, 0, remaining)
}

func TestProcessBatchSkipsUnfundableRequests(t *testing.T) {
	e := newTestVault(t, testParams(), nil)
	e.fund(t, alice, "200")
	e.fund(t, bob, "300")
	_, err := e.vault.Deposit(pNobody, alice, d("200"), d("0"))
	require.NoError(t, err)
	_, err = e.vault.Deposit(pNobody, bob, d("300"), d("0"))
	require.NoError(t, err)
	e.clk.Advance(8 * time.Hour)

	reqA, _ := e.vault.RequestUnstake(pNobody, alice, d("200"), d("0"))
	reqB, _ := e.vault.RequestUnstake(pNobody, bob, d("300"), d("0"))
	_, err = e.vault.MarkForProcessing(pManager, []uint64{reqA.ID, reqB.ID})
	require.NoError(t, err)

	// Only 250 in the reserve: the greedy pass funds the 200 request and
	// leaves the 300 one queued for the next run.
	e.fund(t, acctReserve, "250")
	processed, remaining, err := e.vault.ProcessBatch(pManager, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, 1, remaining)
}

func TestProcessSingleFastPath(t *testing.T) {
	e := newTestVault(t, testParams(), nil)
	e.fund(t, alice, "100")
	_, err := e.vault.Deposit(pNobody, alice, d("100"), d("0"))
	require.NoError(t, err)
	e.clk.Advance(8 * time.Hour)

	req, err := e.vault.RequestUnstake(pNobody, alice, d("100"), d("0"))
	require.NoError(t, err)

	e.fund(t, acctReserve, "100")
	require.NoError(t, e.vault.ProcessSingle(pManager, req.ID), "QUEUED jumps straight to PROCESSED")
	assert.Equal(t, model.StatusProcessed, e.vault.RequestsFor(alice)[0].Status)

	if err := e.vault.ProcessSingle(pManager, req.ID); !apperrors.IsType(err, apperrors.ErrStateConflict) {
		t.Fatalf("re-processing must fail, got %v", err)
	}
	if err := e.vault.ProcessSingle(pManager, 999); !apperrors.IsType(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEarlyWithdrawConsumesProcessedRequests(t *testing.T) {
	e := newTestVault(t, testParams(), nil)
	e.fund(t, alice, "200")
	_, err := e.vault.Deposit(pNobody, alice, d("200"), d("0"))
	require.NoError(t, err)
	e.clk.Advance(8 * time.Hour)

	req, err := e.vault.RequestUnstake(pNobody, alice, d("200"), d("0"))
	require.NoError(t, err)
	e.fund(t, acctReserve, "200")
	require.NoError(t, e.vault.ProcessSingle(pManager, req.ID))

	// 150 out before cooldown, 0.5% unlock fee.
	paid, fee, err := e.vault.EarlyWithdraw(pNobody, alice, d("150"))
	require.NoError(t, err)
	assert.True(t, paid.Equal(d("149.25")), "paid = %s", paid)
	assert.True(t, fee.Equal(d("0.75")), "fee = %s", fee)

	reqs := e.vault.RequestsFor(alice)
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].UnderlyingAmount.Equal(d("50")), "request partially consumed")

	// The remainder claims normally after cooldown, fee free.
	e.clk.Advance(time.Hour)
	paid, err = e.vault.Claim(pNobody, alice)
	require.NoError(t, err)
	assert.True(t, paid.Equal(d("50")))
	assert.True(t, e.underlying.BalanceOf(alice).Equal(d("199.25")))
}

func TestEarlyWithdrawSettlesDespiteFeeLegFailure(t *testing.T) {
	flaky := &feeFailLedger{InMemoryLedger: ledger.NewInMemoryLedger()}
	e := newTestVault(t, testParams(), flaky)
	e.fund(t, alice, "200")
	_, err := e.vault.Deposit(pNobody, alice, d("200"), d("0"))
	require.NoError(t, err)
	e.clk.Advance(8 * time.Hour)

	req, err := e.vault.RequestUnstake(pNobody, alice, d("200"), d("0"))
	require.NoError(t, err)
	e.fund(t, acctReserve, "200")
	require.NoError(t, e.vault.ProcessSingle(pManager, req.ID))

	// Money moves to the owner even though the collector leg fails, so the
	// call reports success and the requests are consumed.
	flaky.fail = true
	paid, fee, err := e.vault.EarlyWithdraw(pNobody, alice, d("150"))
	require.NoError(t, err, "settled withdrawal must not surface the fee leg failure")
	assert.True(t, paid.Equal(d("149.25")))
	assert.True(t, fee.Equal(d("0.75")))

	reqs := e.vault.RequestsFor(alice)
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].UnderlyingAmount.Equal(d("50")), "request consumed down to the remainder")

	// The remainder stays claimable; only the stranded fee sits on the silo.
	e.clk.Advance(time.Hour)
	paid, err = e.vault.Claim(pNobody, alice)
	require.NoError(t, err)
	assert.True(t, paid.Equal(d("50")))
	assert.True(t, e.underlying.BalanceOf(alice).Equal(d("199.25")))
	assert.True(t, e.underlying.BalanceOf(acctSilo).Equal(d("0.75")))
}

func TestUnstakeRoleGates(t *testing.T) {
	e := newTestVault(t, testParams(), nil)

	if _, err := e.vault.MarkForProcessing(pNobody, []uint64{1}); !apperrors.IsType(err, apperrors.ErrAuthFailed) {
		t.Fatalf("expected auth failure, got %v", err)
	}
	if _, _, err := e.vault.ProcessBatch(pRewarder, 10); !apperrors.IsType(err, apperrors.ErrAuthFailed) {
		t.Fatalf("expected auth failure, got %v", err)
	}
	if _, _, err := e.vault.InjectYield(pManager, rewardFund, d("1"), d("0")); !apperrors.IsType(err, apperrors.ErrAuthFailed) {
		t.Fatalf("expected auth failure, got %v", err)
	}
}

func TestFullPauseBlocksQueueOperations(t *testing.T) {
	e := newTestVault(t, testParams(), nil)
	e.fund(t, alice, "100")
	_, err := e.vault.Deposit(pNobody, alice, d("100"), d("0"))
	require.NoError(t, err)
	e.clk.Advance(8 * time.Hour)
	req, err := e.vault.RequestUnstake(pNobody, alice, d("100"), d("0"))
	require.NoError(t, err)

	require.NoError(t, e.vault.TriggerCircuitBreaker(pAdmin))

	if _, err := e.vault.RequestUnstake(pNobody, alice, d("1"), d("0")); err != ErrWithdrawalsPaused {
		t.Fatalf("expected withdrawals paused, got %v", err)
	}
	if _, _, err := e.vault.ProcessBatch(pManager, 10); !apperrors.IsType(err, apperrors.ErrStateConflict) {
		t.Fatalf("expected full pause rejection, got %v", err)
	}
	if _, err := e.vault.MarkForProcessing(pManager, []uint64{req.ID}); !apperrors.IsType(err, apperrors.ErrStateConflict) {
		t.Fatalf("expected full pause rejection, got %v", err)
	}
	if _, err := e.vault.Claim(pNobody, alice); err != ErrWithdrawalsPaused {
		t.Fatalf("expected withdrawals paused, got %v", err)
	}

	// Recovery exit is deliberately two calls.
	if err := e.vault.ActivateRecovery(pAdmin); !apperrors.IsType(err, apperrors.ErrTimelock) {
		t.Fatalf("expected timelock, got %v", err)
	}
	e.clk.Advance(24 * time.Hour)
	require.NoError(t, e.vault.ActivateRecovery(pAdmin))
	if err := e.vault.SetEmergencyMode(pAdmin, model.ModeNormal); !apperrors.IsType(err, apperrors.ErrStateConflict) {
		t.Fatalf("expected recovery conflict, got %v", err)
	}
	require.NoError(t, e.vault.DeactivateRecovery(pAdmin))
	assert.Equal(t, model.ModeFullPause, e.vault.EmergencyMode())
	require.NoError(t, e.vault.ResumeOperations(pAdmin))
	assert.Equal(t, model.ModeNormal, e.vault.EmergencyMode())
}
