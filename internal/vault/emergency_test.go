package vault

import (
	"testing"
	"time"

	"github.com/lstlabs/vaultgate/internal/model"
	"github.com/lstlabs/vaultgate/internal/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmergencyModeGating(t *testing.T) {
	cases := []struct {
		mode        model.EmergencyMode
		deposits    bool
		withdrawals bool
	}{
		{model.ModeNormal, true, true},
		{model.ModeDepositsPaused, false, true},
		{model.ModeWithdrawalsPaused, true, false},
		{model.ModeFullPause, false, false},
	}
	for _, tc := range cases {
		clk := newClock()
		e := NewEmergency(24*time.Hour, clk.Now)
		require.NoError(t, e.SetMode(tc.mode))
		assert.Equal(t, tc.deposits, e.DepositsAllowed(), "deposits in %s", tc.mode)
		assert.Equal(t, tc.withdrawals, e.WithdrawalsAllowed(), "withdrawals in %s", tc.mode)
	}
}

func TestRecoveryTimelock(t *testing.T) {
	clk := newClock()
	e := NewEmergency(24*time.Hour, clk.Now)

	if err := e.ActivateRecovery(); !apperrors.IsType(err, apperrors.ErrStateConflict) {
		t.Fatalf("activation without schedule must fail, got %v", err)
	}

	require.NoError(t, e.ScheduleRecovery())
	if err := e.ScheduleRecovery(); !apperrors.IsType(err, apperrors.ErrStateConflict) {
		t.Fatalf("double schedule must fail, got %v", err)
	}

	clk.Advance(23 * time.Hour)
	if err := e.ActivateRecovery(); !apperrors.IsType(err, apperrors.ErrTimelock) {
		t.Fatalf("expected timelock error, got %v", err)
	}

	clk.Advance(time.Hour)
	require.NoError(t, e.ActivateRecovery())
	assert.True(t, e.RecoveryActive())
	assert.Equal(t, model.ModeFullPause, e.Mode())
}

func TestRecoveryBlocksModeChanges(t *testing.T) {
	clk := newClock()
	e := NewEmergency(time.Hour, clk.Now)
	require.NoError(t, e.ScheduleRecovery())
	clk.Advance(time.Hour)
	require.NoError(t, e.ActivateRecovery())

	if err := e.SetMode(model.ModeNormal); !apperrors.IsType(err, apperrors.ErrStateConflict) {
		t.Fatalf("mode change during recovery must fail, got %v", err)
	}
	if err := e.ResumeOperations(); !apperrors.IsType(err, apperrors.ErrStateConflict) {
		t.Fatalf("resume during recovery must fail, got %v", err)
	}
}

func TestRecoveryTwoStepExit(t *testing.T) {
	clk := newClock()
	e := NewEmergency(time.Hour, clk.Now)
	require.NoError(t, e.ScheduleRecovery())
	clk.Advance(time.Hour)
	require.NoError(t, e.ActivateRecovery())

	// Step one clears the overlay but deliberately keeps the vault paused.
	require.NoError(t, e.DeactivateRecovery())
	assert.False(t, e.RecoveryActive())
	assert.Equal(t, model.ModeFullPause, e.Mode())
	assert.False(t, e.RecoveryScheduled(), "timer must clear with the flag")

	// Step two reopens.
	require.NoError(t, e.ResumeOperations())
	assert.Equal(t, model.ModeNormal, e.Mode())

	if err := e.DeactivateRecovery(); !apperrors.IsType(err, apperrors.ErrStateConflict) {
		t.Fatalf("deactivating inactive recovery must fail, got %v", err)
	}
}

func TestCircuitBreakerSchedulesRecovery(t *testing.T) {
	clk := newClock()
	e := NewEmergency(24*time.Hour, clk.Now)

	require.NoError(t, e.TriggerCircuitBreaker())
	assert.Equal(t, model.ModeFullPause, e.Mode())
	assert.True(t, e.RecoveryScheduled())

	// A second trigger must not push the eligibility deadline out.
	clk.Advance(20 * time.Hour)
	require.NoError(t, e.TriggerCircuitBreaker())
	clk.Advance(4 * time.Hour)
	assert.NoError(t, e.ActivateRecovery())
}
