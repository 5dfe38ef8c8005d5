// Package nav tracks where a browser session has been sent.
package nav

import (
	"log/slog"
	"sync"

	"tgforward-web/internal/event"
)

// Navigator records the pending navigation of one browser session. While a
// navigation to a target is pending, further requests for the same target
// are absorbed, so any number of simultaneous auth failures produce a
// single effective redirect.
type Navigator struct {
	sessionID string
	bus       event.Bus

	mu      sync.Mutex
	pending string
	count   int
	hook    func(target string)
}

func New(sessionID string, bus event.Bus) *Navigator {
	return &Navigator{sessionID: sessionID, bus: bus}
}

// Navigate reports whether the call started a new navigation.
func (n *Navigator) Navigate(target string) bool {
	n.mu.Lock()
	if n.pending == target {
		n.mu.Unlock()
		return false
	}
	n.pending = target
	n.count++
	hook := n.hook
	n.mu.Unlock()

	slog.Info("navigating session", "session", n.sessionID, "target", target)
	if n.bus != nil {
		n.bus.Publish(event.New(n.sessionID, event.TypeNavigate, target))
	}
	if hook != nil {
		hook(target)
	}
	return true
}

// OnNavigate registers fn to run after every effective navigation.
func (n *Navigator) OnNavigate(fn func(target string)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hook = fn
}

// Arrive marks path as reached. Reaching any page ends the pending
// navigation.
func (n *Navigator) Arrive(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pending != "" && n.pending != path {
		slog.Debug("navigation superseded", "session", n.sessionID, "pending", n.pending, "arrived", path)
	}
	n.pending = ""
}

func (n *Navigator) Pending() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pending, n.pending != ""
}

// Count is the number of effective navigations so far.
func (n *Navigator) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}
