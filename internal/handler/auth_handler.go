package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"tgforward-web/internal/model"
	"tgforward-web/internal/session"
)

type AuthHandler struct {
	sessions *session.Manager
	pages    *Renderer
}

func NewAuthHandler(sessions *session.Manager, pages *Renderer) *AuthHandler {
	return &AuthHandler{sessions: sessions, pages: pages}
}

// Home sends signed-in sessions to their landing page and everyone else to
// the login page.
func (h *AuthHandler) Home(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	if _, role, signedIn := s.User(); signedIn {
		http.Redirect(w, r, role.LandingPath(), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	s.Nav.Arrive(r.URL.Path)
	h.pages.Render(w, http.StatusOK, "login", PageData{Title: "Sign in", Toasts: s.Toasts.Drain()})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	if err := parseForm(r); err != nil {
		h.loginFailed(w, s, http.StatusBadRequest, "The form could not be read.")
		return
	}

	user, role, err := s.Gateway.Login(r.Context(), r.PostForm.Get("username"), r.PostForm.Get("password"))
	if err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidInput):
			h.loginFailed(w, s, http.StatusBadRequest, "Username and password are required.")
		case errors.Is(err, model.ErrInvalidCredentials):
			h.loginFailed(w, s, http.StatusUnauthorized, "Invalid username or password.")
		default:
			h.loginFailed(w, s, http.StatusBadGateway, "Login is unavailable right now. Please try again.")
		}
		return
	}

	s.SetUser(user, role)
	// The landing page confirms the role itself.
	s.Auth.Reset()
	s.Nav.Arrive("/login")

	slog.Info("user signed in", "user_id", user.ID, "role", role.String())
	http.Redirect(w, r, role.LandingPath(), http.StatusSeeOther)
}

func (h *AuthHandler) loginFailed(w http.ResponseWriter, s *session.Session, status int, message string) {
	h.pages.Render(w, status, "login", PageData{Title: "Sign in", Error: message, Toasts: s.Toasts.Drain()})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	if _, err := s.Gateway.Logout(r.Context()); err != nil {
		slog.Warn("gateway logout failed", "error", err)
	}
	s.ClearUser()
	s.Auth.Reset()

	if err := h.sessions.End(r.Context(), w, s); err != nil {
		slog.Warn("failed to end browser session", "error", err)
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
