package amqp

import (
	"encoding/json"
	"time"

	"bilancio/internal/core"
)

// Entity kinds carried in change messages.
const (
	EntityIncome      = "income"
	EntityExpense     = "expense"
	EntityCategory    = "category"
	EntityCard        = "card"
	EntityCardPayment = "card_payment"
	EntitySnapshot    = "snapshot"
)

// EntityChangeMessage announces that an entity was created, updated or
// deleted. It carries the affected months so consumers can re-export
// only the dashboard rows that actually changed. The timestamp drives
// last-write-wins on the consumer side: older messages for the same
// entity are dropped.
type EntityChangeMessage struct {
	Kind      string       `json:"kind"`
	ID        string       `json:"id"`
	Action    string       `json:"action"` // created | updated | deleted
	Months    []core.Month `json:"months,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewEntityChangeMessage stamps a change event with the current time.
func NewEntityChangeMessage(kind, id, action string, months []core.Month) *EntityChangeMessage {
	return &EntityChangeMessage{
		Kind:      kind,
		ID:        id,
		Action:    action,
		Months:    months,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *EntityChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EntityChangeMessageFromJSON parses a message from JSON bytes.
func EntityChangeMessageFromJSON(data []byte) (*EntityChangeMessage, error) {
	var msg EntityChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
