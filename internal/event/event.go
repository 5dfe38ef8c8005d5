package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeToast             Type = "toast"
	TypeNavigate          Type = "navigate"
	TypeAuthChanged       Type = "auth.changed"
	TypeForwardingChanged Type = "forwarding.changed"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	SessionID string `json:"-"` // Browser session the event belongs to
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
}

func New(sessionID string, typ Type, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		SessionID: sessionID,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
