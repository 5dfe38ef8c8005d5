// Package guard gates pages behind a role check confirmed by the gateway.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"tgforward-web/internal/authstate"
	"tgforward-web/internal/model"
)

var ErrNotAuthorized = errors.New("not authorized")

// Prober asks the gateway whether the session may act as role.
type Prober interface {
	Probe(ctx context.Context, role model.Role) error
}

type Navigator interface {
	Navigate(target string) bool
	Arrive(path string)
}

// Observer is told the result of every probe.
type Observer interface {
	ObserveProbe(role model.Role, err error)
}

type Option func(*Guard)

func WithObserver(observer Observer) Option {
	return func(g *Guard) {
		g.observer = observer
	}
}

// Guard belongs to one browser session. It never trusts a role held by the
// client: every probe asks the gateway to confirm the required role.
type Guard struct {
	prober    Prober
	state     *authstate.Store
	nav       Navigator
	observer  Observer
	loginPath string

	mu        sync.Mutex
	confirmed *model.Role
}

func New(prober Prober, state *authstate.Store, nav Navigator, loginPath string, opts ...Option) *Guard {
	if loginPath == "" {
		loginPath = "/login"
	}
	g := &Guard{prober: prober, state: state, nav: nav, loginPath: loginPath}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) probe(ctx context.Context, role model.Role) error {
	err := g.prober.Probe(ctx, role)
	if g.observer != nil && ctx.Err() == nil {
		g.observer.ObserveProbe(role, err)
	}
	return err
}

func (g *Guard) LoginPath() string {
	return g.loginPath
}

// Mount runs render only once authorization for role is confirmed. If the
// session flag is already set no probe is made, unless the last probe
// confirmed a different role. Every probe failure is handled the same way:
// the flag is cleared, the session is sent to the login page and render is
// not called.
func (g *Guard) Mount(ctx context.Context, role model.Role, render func() error) (bool, error) {
	if !g.state.IsAuthenticated() || !g.covers(role) {
		if err := g.probe(ctx, role); err != nil {
			g.reject(role, err)
			return false, fmt.Errorf("%w as %s: %w", ErrNotAuthorized, role, err)
		}
		g.confirm(role)
	}

	return true, render()
}

func (g *Guard) covers(role model.Role) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.confirmed == nil || *g.confirmed == role
}

func (g *Guard) confirm(role model.Role) {
	g.mu.Lock()
	g.confirmed = &role
	g.mu.Unlock()
	g.state.SetAuthenticated(true)
}

// Watch keeps a live page honest: whenever the flag drops to false it
// re-probes role. A successful probe restores the flag; a failed one sends
// the session to the login page, calls onReject and ends the watch, so a
// failure never triggers another probe.
func (g *Guard) Watch(ctx context.Context, role model.Role, onReject func()) {
	changes, unsubscribe := g.state.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case authenticated, ok := <-changes:
			if !ok {
				return
			}
			if authenticated {
				continue
			}

			if err := g.probe(ctx, role); err != nil {
				if ctx.Err() != nil {
					return
				}
				g.reject(role, err)
				if onReject != nil {
					onReject()
				}
				return
			}
			g.confirm(role)
		}
	}
}

func (g *Guard) reject(role model.Role, err error) {
	slog.Info("authorization probe rejected", "role", role.String(), "error", err)
	g.mu.Lock()
	g.confirmed = nil
	g.mu.Unlock()
	g.state.SetAuthenticated(false)
	g.nav.Navigate(g.loginPath)
}

// Resolver finds the guard of the session a request belongs to.
type Resolver func(r *http.Request) (*Guard, bool)

// Page guards a full page load. A page load forgets earlier authorization,
// so the role is always confirmed before the page renders.
func Page(resolve Resolver, role model.Role, page http.HandlerFunc) http.Handler {
	return serve(resolve, role, page, true)
}

// Fragment guards in-page requests (partials, the live channel) that reuse
// the authorization of the page that issued them.
func Fragment(resolve Resolver, role model.Role, page http.HandlerFunc) http.Handler {
	return serve(resolve, role, page, false)
}

func serve(resolve Resolver, role model.Role, page http.HandlerFunc, fullLoad bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g, ok := resolve(r)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		if fullLoad {
			g.state.Reset()
		}

		rendered, _ := g.Mount(r.Context(), role, func() error {
			// An authorized request ends whatever navigation was pending, so
			// the next rejection redirects again.
			g.nav.Arrive(r.URL.Path)
			page(w, r)
			return nil
		})
		if !rendered {
			http.Redirect(w, r, g.loginPath, http.StatusSeeOther)
		}
	})
}
