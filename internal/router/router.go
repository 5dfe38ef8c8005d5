package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tgforward-web/internal/config"
	"tgforward-web/internal/guard"
	"tgforward-web/internal/handler"
	"tgforward-web/internal/middleware"
	"tgforward-web/internal/model"
	"tgforward-web/internal/session"
)

type Handlers struct {
	Auth  *handler.AuthHandler
	User  *handler.UserHandler
	Admin *handler.AdminHandler
	Live  *handler.LiveHandler
}

// New builds the browser-facing routes. Pages are guarded as full loads,
// fragments and form posts reuse the page's authorization.
func New(cfg *config.Config, sessions *session.Manager, h Handlers, metrics http.Handler, health http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.LoginRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", health)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Group(func(web chi.Router) {
		web.Use(sessions.Middleware)

		// Live channels hijack the connection and cannot sit behind the
		// buffering timeout.
		web.Get("/user/live", guard.Fragment(sessions.Guard, model.RoleUser, h.Live.Serve(model.RoleUser)).ServeHTTP)
		web.Get("/admin/live", guard.Fragment(sessions.Guard, model.RoleAdmin, h.Live.Serve(model.RoleAdmin)).ServeHTTP)

		web.Group(func(pages chi.Router) {
			pages.Use(middleware.Timeout(cfg.HandlerTimeout))

			pages.Get("/", h.Auth.Home)
			pages.Get("/login", h.Auth.LoginPage)
			pages.Post("/login", h.Auth.Login)
			pages.Post("/logout", h.Auth.Logout)

			pages.Method(http.MethodGet, "/user", guard.Page(sessions.Guard, model.RoleUser, h.User.Dashboard))
			pages.Method(http.MethodGet, "/user/status", guard.Fragment(sessions.Guard, model.RoleUser, h.User.Status))
			pages.Method(http.MethodPost, "/user/credentials", guard.Fragment(sessions.Guard, model.RoleUser, h.User.SaveCredentials))
			pages.Method(http.MethodPost, "/user/groups", guard.Fragment(sessions.Guard, model.RoleUser, h.User.AddGroup))
			pages.Method(http.MethodPost, "/user/groups/{id}/delete", guard.Fragment(sessions.Guard, model.RoleUser, h.User.DeleteGroup))
			pages.Method(http.MethodPost, "/user/forwarding/start", guard.Fragment(sessions.Guard, model.RoleUser, h.User.StartForwarding))
			pages.Method(http.MethodPost, "/user/forwarding/stop", guard.Fragment(sessions.Guard, model.RoleUser, h.User.StopForwarding))

			pages.Method(http.MethodGet, "/admin", guard.Page(sessions.Guard, model.RoleAdmin, h.Admin.Dashboard))
			pages.Method(http.MethodGet, "/admin/stats", guard.Fragment(sessions.Guard, model.RoleAdmin, h.Admin.Stats))
		})
	})

	return r
}
