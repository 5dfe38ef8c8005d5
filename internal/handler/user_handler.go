package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"tgforward-web/internal/apiclient"
	"tgforward-web/internal/event"
	"tgforward-web/internal/model"
	"tgforward-web/internal/notify"
	"tgforward-web/internal/session"
)

type UserHandler struct {
	pages *Renderer
	bus   event.Bus
}

func NewUserHandler(pages *Renderer, bus event.Bus) *UserHandler {
	return &UserHandler{pages: pages, bus: bus}
}

type userPage struct {
	Profile model.Profile
	Groups  []model.Group
	Status  model.ForwardingStatus
}

// Dashboard is only reached through the guard, so the role is confirmed.
// The three reads run concurrently and share the session's refresh.
func (h *UserHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	var page userPage
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		profile, err := s.Gateway.Profile(ctx)
		page.Profile = profile
		return err
	})
	g.Go(func() error {
		groups, err := s.Gateway.Groups(ctx)
		page.Groups = groups
		return err
	})
	g.Go(func() error {
		status, err := s.Gateway.ForwardingStatus(ctx)
		page.Status = status
		return err
	})

	if err := g.Wait(); err != nil && leaveForLogin(w, r, s, err) {
		return
	}

	user, role, signedIn := s.User()
	h.pages.Render(w, http.StatusOK, "user", PageData{
		Title:    "Dashboard",
		User:     user,
		Role:     role,
		SignedIn: signedIn,
		Toasts:   s.Toasts.Drain(),
		LivePath: "/user/live",
		Data:     page,
	})
}

func (h *UserHandler) SaveCredentials(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	err := parseForm(r)
	var apiID int
	if err == nil {
		apiID, err = strconv.Atoi(strings.TrimSpace(r.PostForm.Get("api_id")))
		if err != nil {
			err = fmt.Errorf("%w: api_id must be a number", model.ErrInvalidInput)
		}
	}
	if err == nil {
		err = s.Gateway.SaveTelegramCredentials(r.Context(), model.TelegramCredentialsRequest{
			APIID:   apiID,
			APIHash: r.PostForm.Get("api_hash"),
			Phone:   r.PostForm.Get("phone"),
		})
	}

	h.afterAction(w, r, s, err, "Telegram credentials saved.")
}

func (h *UserHandler) AddGroup(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	err := parseForm(r)
	var chatID int64
	if err == nil {
		chatID, err = strconv.ParseInt(strings.TrimSpace(r.PostForm.Get("chat_id")), 10, 64)
		if err != nil {
			err = fmt.Errorf("%w: chat_id must be a number", model.ErrInvalidInput)
		}
	}
	if err == nil {
		_, err = s.Gateway.AddGroup(r.Context(), model.CreateGroupRequest{
			ChatID: chatID,
			Title:  r.PostForm.Get("title"),
			Kind:   model.GroupKind(r.PostForm.Get("kind")),
		})
	}

	h.afterAction(w, r, s, err, "Group added.")
}

func (h *UserHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		err = fmt.Errorf("%w: group id must be a number", model.ErrInvalidInput)
	} else {
		err = s.Gateway.DeleteGroup(r.Context(), id)
	}

	h.afterAction(w, r, s, err, "Group removed.")
}

func (h *UserHandler) StartForwarding(w http.ResponseWriter, r *http.Request) {
	h.toggleForwarding(w, r, true)
}

func (h *UserHandler) StopForwarding(w http.ResponseWriter, r *http.Request) {
	h.toggleForwarding(w, r, false)
}

func (h *UserHandler) toggleForwarding(w http.ResponseWriter, r *http.Request, start bool) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	var resp model.ActionResponse
	var err error
	message := "Forwarding stopped."
	if start {
		message = "Forwarding started."
		resp, err = s.Gateway.StartForwarding(r.Context())
	} else {
		resp, err = s.Gateway.StopForwarding(r.Context())
	}
	if err == nil {
		if resp.Message != "" {
			message = resp.Message
		}
		if h.bus != nil {
			h.bus.Publish(event.New(s.ID, event.TypeForwardingChanged, map[string]bool{"running": start}))
		}
	}

	h.afterAction(w, r, s, err, message)
}

// Status is polled by the open dashboard.
func (h *UserHandler) Status(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	status, err := s.Gateway.ForwardingStatus(r.Context())
	if err != nil {
		if errors.Is(err, apiclient.ErrLoginRequired) {
			s.Auth.SetAuthenticated(false)
		}
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, status)
}

// afterAction reports the outcome of a form post and sends the browser back
// to the dashboard, or to the login page when the session is gone.
func (h *UserHandler) afterAction(w http.ResponseWriter, r *http.Request, s *session.Session, err error, success string) {
	if err == nil {
		s.Toasts.Notify(notify.LevelInfo, success)
	} else {
		if leaveForLogin(w, r, s, err) {
			return
		}
		if msg := userMessage(err); msg != "" {
			s.Toasts.Notify(notify.LevelWarning, msg)
		}
	}
	http.Redirect(w, r, "/user", http.StatusSeeOther)
}

// leaveForLogin handles a failure after which the session must sign in
// again. The interceptor has already queued the toast and the navigation.
func leaveForLogin(w http.ResponseWriter, r *http.Request, s *session.Session, err error) bool {
	if !errors.Is(err, apiclient.ErrLoginRequired) {
		return false
	}
	s.Auth.SetAuthenticated(false)
	http.Redirect(w, r, s.Guard.LoginPath(), http.StatusSeeOther)
	return true
}
