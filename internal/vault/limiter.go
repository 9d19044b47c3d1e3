package vault

import (
	"time"

	"github.com/lstlabs/vaultgate/internal/pkg/apperrors"
	"github.com/lstlabs/vaultgate/internal/pkg/metrics"
	"github.com/shopspring/decimal"
)

// DailyLimit caps cumulative volume inside a rolling 24h window. The window
// resets lazily on the first operation after expiry; there is no background
// timer. Not safe for concurrent use on its own; the Vault serializes.
type DailyLimit struct {
	name        string
	max         decimal.Decimal // zero disables the limit
	used        decimal.Decimal
	windowStart time.Time
	window      time.Duration

	now     func() time.Time
	onReset func(name string)
}

func NewDailyLimit(name string, max decimal.Decimal, window time.Duration, now func() time.Time) *DailyLimit {
	if now == nil {
		now = time.Now
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &DailyLimit{
		name:        name,
		max:         max,
		window:      window,
		windowStart: now(),
		now:         now,
	}
}

// OnReset registers a callback fired when an expired window rolls over.
func (l *DailyLimit) OnReset(fn func(name string)) {
	l.onReset = fn
}

func (l *DailyLimit) roll() {
	if l.now().Sub(l.windowStart) < l.window {
		return
	}
	l.windowStart = l.now()
	l.used = decimal.Zero
	if l.onReset != nil {
		l.onReset(l.name)
	}
}

// Check rejects amounts that would push the current window past the cap.
// It does not consume; callers Record only after every other gate passed.
func (l *DailyLimit) Check(amount decimal.Decimal) error {
	l.roll()
	if !l.max.IsPositive() {
		return nil
	}
	if l.used.Add(amount).GreaterThan(l.max) {
		metrics.LimitRejects.WithLabelValues(l.name).Inc()
		return apperrors.Newf(apperrors.ErrLimitExceeded,
			"daily %s limit exceeded (used %s, requested %s, max %s)",
			l.name, l.used, amount, l.max)
	}
	return nil
}

// Record consumes window capacity. Call only after the operation committed.
func (l *DailyLimit) Record(amount decimal.Decimal) {
	l.roll()
	l.used = l.used.Add(amount)
}

// Refund returns capacity consumed by an operation that failed after
// recording. Clamped at zero in case the window rolled over in between.
func (l *DailyLimit) Refund(amount decimal.Decimal) {
	l.used = l.used.Sub(amount)
	if l.used.IsNegative() {
		l.used = decimal.Zero
	}
}

func (l *DailyLimit) Used() decimal.Decimal {
	l.roll()
	return l.used
}

func (l *DailyLimit) SetMax(max decimal.Decimal) {
	l.max = max
}

// TxCapGuard bounds a single transaction to a percentage of the pool value,
// the first line of defense against flash-loan sized moves.
type TxCapGuard struct {
	maxTxBps int64
}

func NewTxCapGuard(maxTxBps int64) *TxCapGuard {
	return &TxCapGuard{maxTxBps: maxTxBps}
}

// Check rejects amounts above maxTxBps of poolValue. A zero pool (first
// deposit) is exempt, otherwise nothing could ever enter.
func (g *TxCapGuard) Check(amount, poolValue decimal.Decimal) error {
	if g.maxTxBps <= 0 || !poolValue.IsPositive() {
		return nil
	}
	maxTx := poolValue.Mul(decimal.NewFromInt(g.maxTxBps)).DivRound(tenK, rateScale)
	if amount.GreaterThan(maxTx) {
		metrics.LimitRejects.WithLabelValues("tx_cap").Inc()
		return apperrors.Newf(apperrors.ErrLimitExceeded,
			"transaction too large: %s exceeds %s (%d bps of pool)", amount, maxTx, g.maxTxBps)
	}
	return nil
}
