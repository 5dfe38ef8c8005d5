package handler

import (
	"log/slog"
	"net/http"

	"tgforward-web/internal/model"
	"tgforward-web/internal/websocket"
)

// LiveHandler opens the live channel of a page: toasts and navigations for
// the session, plus a watch that re-probes the role whenever the session's
// auth flag drops.
type LiveHandler struct {
	hub *websocket.Hub
}

func NewLiveHandler(hub *websocket.Hub) *LiveHandler {
	return &LiveHandler{hub: hub}
}

func (h *LiveHandler) Serve(role model.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := currentSession(w, r)
		if !ok {
			return
		}

		ctx, err := h.hub.Serve(w, r, s.ID)
		if err != nil {
			slog.Warn("live channel upgrade failed", "error", err)
			return
		}

		go s.Guard.Watch(ctx, role, func() {
			slog.Info("live page lost authorization", "role", role.String())
		})
	}
}
