package handler

import (
	"errors"
	"net/http"

	"golang.org/x/sync/errgroup"

	"tgforward-web/internal/apiclient"
	"tgforward-web/internal/model"
)

type AdminHandler struct {
	pages *Renderer
}

func NewAdminHandler(pages *Renderer) *AdminHandler {
	return &AdminHandler{pages: pages}
}

type adminPage struct {
	Dashboard model.Dashboard
	Users     []model.AdminUserRow
}

func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	var page adminPage
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		dashboard, err := s.Gateway.Dashboard(ctx)
		page.Dashboard = dashboard
		return err
	})
	g.Go(func() error {
		users, err := s.Gateway.Users(ctx)
		page.Users = users
		return err
	})

	if err := g.Wait(); err != nil && leaveForLogin(w, r, s, err) {
		return
	}

	user, role, signedIn := s.User()
	h.pages.Render(w, http.StatusOK, "admin", PageData{
		Title:    "Admin",
		User:     user,
		Role:     role,
		SignedIn: signedIn,
		Toasts:   s.Toasts.Drain(),
		LivePath: "/admin/live",
		Data:     page,
	})
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	dashboard, err := s.Gateway.Dashboard(r.Context())
	if err != nil {
		if errors.Is(err, apiclient.ErrLoginRequired) {
			s.Auth.SetAuthenticated(false)
		}
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, dashboard)
}
