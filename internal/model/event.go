package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the observable signals the vault produces. These are
// for monitoring and indexing, never internal control flow.
type EventType string

const (
	EventRateUpdated        EventType = "rate_updated"
	EventYieldInjected      EventType = "yield_injected"
	EventDepositAccepted    EventType = "deposit_accepted"
	EventUnstakeRequested   EventType = "unstake_requested"
	EventUnstakeMarked      EventType = "unstake_marked"
	EventUnstakeProcessed   EventType = "unstake_processed"
	EventUnstakeFailed      EventType = "unstake_failed"
	EventUnstakeClaimed     EventType = "unstake_claimed"
	EventUnstakeCancelled   EventType = "unstake_cancelled"
	EventEarlyWithdraw      EventType = "early_withdraw"
	EventLiquidityAlert     EventType = "liquidity_alert"
	EventLiquidityRecovered EventType = "liquidity_recovered"
	EventEmergencyChanged   EventType = "emergency_changed"
	EventRecoveryScheduled  EventType = "recovery_scheduled"
	EventRecoveryActivated  EventType = "recovery_activated"
	EventRecoveryCleared    EventType = "recovery_deactivated"
	EventDailyLimitReset    EventType = "daily_limit_reset"
	EventCustodianTransfer  EventType = "custodian_transfer"
)

// Event is one journal entry. Fields holds event-specific key/values
// (amounts are serialized as strings to keep decimal precision).
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Actor     string            `json:"actor,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func NewEvent(t EventType, actor string, fields map[string]string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      t,
		Actor:     actor,
		Fields:    fields,
		CreatedAt: time.Now().UTC(),
	}
}
