// Package notify queues user-facing toast messages for one browser session.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"tgforward-web/internal/event"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

const defaultLimit = 20

type Toast struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Toasts keeps the most recent undelivered toasts of a session and mirrors
// each one onto the event bus for pages that are currently open.
type Toasts struct {
	sessionID string
	bus       event.Bus
	limit     int

	mu    sync.Mutex
	items []Toast
}

func NewToasts(sessionID string, bus event.Bus) *Toasts {
	return &Toasts{sessionID: sessionID, bus: bus, limit: defaultLimit}
}

func (t *Toasts) Notify(level Level, message string) {
	toast := Toast{Level: level, Message: message, At: time.Now().UTC()}

	t.mu.Lock()
	t.items = append(t.items, toast)
	if overflow := len(t.items) - t.limit; overflow > 0 {
		t.items = append([]Toast(nil), t.items[overflow:]...)
	}
	t.mu.Unlock()

	slog.Debug("toast queued", "session", t.sessionID, "level", level, "message", message)
	if t.bus != nil {
		t.bus.Publish(event.New(t.sessionID, event.TypeToast, toast))
	}
}

// Drain returns the queued toasts oldest first and empties the queue.
func (t *Toasts) Drain() []Toast {
	t.mu.Lock()
	defer t.mu.Unlock()

	items := t.items
	t.items = nil
	return items
}

func (t *Toasts) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}
