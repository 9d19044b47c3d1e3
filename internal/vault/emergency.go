package vault

import (
	"time"

	"github.com/lstlabs/vaultgate/internal/model"
	"github.com/lstlabs/vaultgate/internal/pkg/apperrors"
)

// Emergency is the global gating state machine. The four modes are mutually
// exclusive; recovery mode is an orthogonal overlay with a timelocked entry
// and a deliberate two-step exit (deactivate, then resume) so a vault is
// never reopened by a single call.
type Emergency struct {
	mode model.EmergencyMode

	recoveryActive      bool
	recoveryEligibleAt  time.Time
	recoveryScheduledAt time.Time
	recoveryDelay       time.Duration

	now func() time.Time
}

func NewEmergency(recoveryDelay time.Duration, now func() time.Time) *Emergency {
	if now == nil {
		now = time.Now
	}
	if recoveryDelay <= 0 {
		recoveryDelay = 24 * time.Hour
	}
	return &Emergency{
		mode:          model.ModeNormal,
		recoveryDelay: recoveryDelay,
		now:           now,
	}
}

func (e *Emergency) Mode() model.EmergencyMode { return e.mode }

func (e *Emergency) RecoveryActive() bool { return e.recoveryActive }

func (e *Emergency) RecoveryScheduled() bool { return !e.recoveryEligibleAt.IsZero() }

func (e *Emergency) DepositsAllowed() bool {
	return e.mode == model.ModeNormal || e.mode == model.ModeWithdrawalsPaused
}

func (e *Emergency) WithdrawalsAllowed() bool {
	return e.mode == model.ModeNormal || e.mode == model.ModeDepositsPaused
}

// SetMode moves directly between gating modes. Not permitted while recovery
// mode is active; recovery forces FULL_PAUSE until explicitly exited.
func (e *Emergency) SetMode(m model.EmergencyMode) error {
	if !m.Valid() {
		return apperrors.NewValidation("unknown emergency mode")
	}
	if e.recoveryActive {
		return apperrors.NewStateConflict("recovery mode active: deactivate before changing state")
	}
	e.mode = m
	return nil
}

// ScheduleRecovery starts the activation timelock.
func (e *Emergency) ScheduleRecovery() error {
	if e.recoveryActive {
		return apperrors.NewStateConflict("recovery mode already active")
	}
	if e.RecoveryScheduled() {
		return apperrors.NewStateConflict("recovery mode already scheduled")
	}
	now := e.now()
	e.recoveryScheduledAt = now
	e.recoveryEligibleAt = now.Add(e.recoveryDelay)
	return nil
}

// TriggerCircuitBreaker forces FULL_PAUSE and, if not already pending,
// schedules recovery mode in one motion.
func (e *Emergency) TriggerCircuitBreaker() error {
	if e.recoveryActive {
		return apperrors.NewStateConflict("recovery mode already active")
	}
	e.mode = model.ModeFullPause
	if !e.RecoveryScheduled() {
		now := e.now()
		e.recoveryScheduledAt = now
		e.recoveryEligibleAt = now.Add(e.recoveryDelay)
	}
	return nil
}

// ActivateRecovery succeeds only after the timelock expires and forces
// FULL_PAUSE.
func (e *Emergency) ActivateRecovery() error {
	if e.recoveryActive {
		return apperrors.NewStateConflict("recovery mode already active")
	}
	if !e.RecoveryScheduled() {
		return apperrors.NewStateConflict("recovery mode was never scheduled")
	}
	if e.now().Before(e.recoveryEligibleAt) {
		return apperrors.New(apperrors.ErrTimelock, "recovery activation timelock has not expired", nil)
	}
	e.recoveryActive = true
	e.mode = model.ModeFullPause
	return nil
}

// DeactivateRecovery clears the flag and timer. The vault stays in
// FULL_PAUSE until ResumeOperations is called separately.
func (e *Emergency) DeactivateRecovery() error {
	if !e.recoveryActive {
		return apperrors.NewStateConflict("recovery mode not active")
	}
	e.recoveryActive = false
	e.recoveryEligibleAt = time.Time{}
	e.recoveryScheduledAt = time.Time{}
	return nil
}

// ResumeOperations reopens the vault. It refuses while recovery is still
// active; the two calls never collapse into one.
func (e *Emergency) ResumeOperations() error {
	if e.recoveryActive {
		return apperrors.NewStateConflict("recovery mode active: deactivate first")
	}
	e.mode = model.ModeNormal
	return nil
}
