package events

import (
	"encoding/json"
	"time"
)

const (
	OpCreated = "created"
	OpUpdated = "updated"
	OpDeleted = "deleted"
	OpSplit   = "split"
	OpUnsplit = "unsplit"
)

// ChangeMessage announces that a ledger transaction changed. It carries only
// the id and the operation; consumers fetch the current row from the store,
// so a stale or duplicated message is harmless.
type ChangeMessage struct {
	ID        string    `json:"id"`
	Op        string    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

func NewChangeMessage(id, op string) *ChangeMessage {
	return &ChangeMessage{
		ID:        id,
		Op:        op,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON creates a message from JSON bytes.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
