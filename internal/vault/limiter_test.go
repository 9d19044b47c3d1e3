package vault

import (
	"testing"
	"time"

	"github.com/lstlabs/vaultgate/internal/pkg/apperrors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDailyLimitWindow(t *testing.T) {
	clk := newClock()
	l := NewDailyLimit("deposit", d("500"), 24*time.Hour, clk.Now)

	// 400 of a 500 cap fits, the next 200 does not.
	assert.NoError(t, l.Check(d("400")))
	l.Record(d("400"))

	err := l.Check(d("200"))
	if !apperrors.IsType(err, apperrors.ErrLimitExceeded) {
		t.Fatalf("expected limit exceeded, got %v", err)
	}
	assert.NoError(t, l.Check(d("100")), "remaining capacity must stay usable")

	// The window rolls lazily on the first touch after expiry.
	clk.Advance(24 * time.Hour)
	assert.NoError(t, l.Check(d("200")))
	l.Record(d("200"))
	assert.True(t, l.Used().Equal(d("200")), "used = %s", l.Used())
}

func TestDailyLimitRefund(t *testing.T) {
	clk := newClock()
	l := NewDailyLimit("deposit", d("500"), 24*time.Hour, clk.Now)

	l.Record(d("400"))
	l.Refund(d("150"))
	assert.True(t, l.Used().Equal(d("250")), "used = %s", l.Used())
	assert.NoError(t, l.Check(d("250")))

	// Over-refunding clamps at zero instead of banking credit.
	l.Refund(d("1000"))
	assert.True(t, l.Used().IsZero())
}

func TestDailyLimitDisabledWhenZero(t *testing.T) {
	clk := newClock()
	l := NewDailyLimit("deposit", decimal.Zero, 24*time.Hour, clk.Now)
	assert.NoError(t, l.Check(d("1000000000")))
}

func TestDailyLimitResetCallback(t *testing.T) {
	clk := newClock()
	l := NewDailyLimit("withdraw", d("100"), 24*time.Hour, clk.Now)

	var resets []string
	l.OnReset(func(name string) { resets = append(resets, name) })

	l.Record(d("60"))
	clk.Advance(23 * time.Hour)
	l.Record(d("40"))
	assert.Empty(t, resets)

	clk.Advance(2 * time.Hour)
	assert.NoError(t, l.Check(d("100")))
	assert.Equal(t, []string{"withdraw"}, resets)
}

func TestTxCapGuard(t *testing.T) {
	g := NewTxCapGuard(1000) // 10% of pool per tx

	assert.NoError(t, g.Check(d("100"), d("1000")))
	err := g.Check(d("101"), d("1000"))
	if !apperrors.IsType(err, apperrors.ErrLimitExceeded) {
		t.Fatalf("expected limit exceeded, got %v", err)
	}

	// An empty pool is exempt, otherwise the first deposit could never land.
	assert.NoError(t, g.Check(d("5000"), decimal.Zero))
}
