package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types published after a ledger transaction commits.
const (
	EventObligationCreated  = "obligation.created"
	EventObligationUpdated  = "obligation.updated"
	EventObligationDeleted  = "obligation.deleted"
	EventObligationRestored = "obligation.restored"
	EventPaymentApplied     = "payment.applied"
	EventPaymentReversed    = "payment.reversed"
	EventPaymentUpdated     = "payment.updated"
	EventLoanPaymentApplied = "loan.payment_applied"
	EventLoanCompleted      = "loan.completed"
	EventOverdueReport      = "overdue.report"
)

// LedgerEvent is a lightweight notification. Consumers fetch full state by
// entity id; Data carries only small summary values.
type LedgerEvent struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	EntityID  int64          `json:"entity_id"`
	Version   int64          `json:"version,omitempty"`
	Actor     string         `json:"actor,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func NewLedgerEvent(eventType string, entityID, version int64) *LedgerEvent {
	return &LedgerEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		EntityID:  entityID,
		Version:   version,
		Timestamp: time.Now().UTC(),
	}
}

// With adds a summary value and returns the event for chaining.
func (e *LedgerEvent) With(key string, value any) *LedgerEvent {
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	e.Data[key] = value
	return e
}

func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
