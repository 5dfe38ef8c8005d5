package router

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"tgforward-web/internal/apiclient"
	"tgforward-web/internal/config"
	"tgforward-web/internal/event"
	"tgforward-web/internal/gateway"
	"tgforward-web/internal/handler"
	"tgforward-web/internal/model"
	"tgforward-web/internal/repository"
	"tgforward-web/internal/session"
	"tgforward-web/internal/websocket"
)

// fakeGateway signs alice in as an admin and reports her access token as
// expired on the dashboard reads until a refresh has happened.
type fakeGateway struct {
	t *testing.T

	probeStatus  int
	probeReason  apiclient.Reason
	probes       atomic.Int32
	refreshCalls atomic.Int32
	expired      atomic.Int32
	bothExpired  chan struct{}
	once         sync.Once
}

func newFakeGateway(t *testing.T) *fakeGateway {
	return &fakeGateway{t: t, probeStatus: http.StatusOK, bothExpired: make(chan struct{})}
}

func (g *fakeGateway) reply(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case gateway.PathLogin:
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1", "role": 1}).SignedString([]byte("k"))
		if err != nil {
			g.t.Error(err)
		}
		http.SetCookie(w, &http.Cookie{Name: gateway.AccessTokenCookie, Value: token, Path: "/", HttpOnly: true})
		http.SetCookie(w, &http.Cookie{Name: gateway.RefreshTokenCookie, Value: "refresh", Path: "/", HttpOnly: true})
		g.reply(w, http.StatusOK, map[string]any{"user": model.User{ID: 1, Username: "alice", Name: "Alice", Role: model.RoleAdmin}})

	case apiclient.RefreshPath:
		g.refreshCalls.Add(1)
		select {
		case <-g.bothExpired:
		case <-time.After(3 * time.Second):
		}
		g.reply(w, http.StatusOK, map[string]string{"access_token": "fresh"})

	case gateway.ProbePath(model.RoleAdmin), gateway.ProbePath(model.RoleUser):
		g.probes.Add(1)
		if g.probeStatus != http.StatusOK {
			g.reply(w, g.probeStatus, map[string]string{"message": string(g.probeReason)})
			return
		}
		g.reply(w, http.StatusOK, map[string]bool{"ok": true})

	case gateway.PathAdminDashboard, gateway.PathAdminUsers:
		if r.Header.Get("Authorization") != "Bearer fresh" {
			if g.expired.Add(1) == 2 {
				g.once.Do(func() { close(g.bothExpired) })
			}
			g.reply(w, http.StatusUnauthorized, map[string]string{"message": string(apiclient.ReasonRefreshRequired)})
			return
		}
		if r.URL.Path == gateway.PathAdminDashboard {
			g.reply(w, http.StatusOK, model.Dashboard{TotalUsers: 42, ActiveForwarders: 7, MessagesForwarded: 1234})
			return
		}
		g.reply(w, http.StatusOK, model.UserList{Users: []model.AdminUserRow{{ID: 2, Username: "bob", Name: "Bob"}}})

	default:
		http.NotFound(w, r)
	}
}

func newTestApp(t *testing.T, gw http.Handler) (*httptest.Server, *http.Client) {
	t.Helper()

	gatewayServer := httptest.NewServer(gw)
	t.Cleanup(gatewayServer.Close)

	sealer, err := session.NewSealer(strings.Repeat("s", 32))
	require.NoError(t, err)

	bus := event.NewBus()
	sessions, err := session.NewManager(session.Config{
		APIBaseURL:     gatewayServer.URL,
		RequestTimeout: 5 * time.Second,
		RefreshTimeout: 5 * time.Second,
		TTL:            time.Hour,
	}, repository.NewMemorySessionRepository(), sealer, bus)
	require.NoError(t, err)

	pages, err := handler.NewRenderer()
	require.NoError(t, err)

	cfg := &config.Config{LoginRateLimitRPM: 100, HandlerTimeout: 30 * time.Second}
	app := httptest.NewServer(New(cfg, sessions, Handlers{
		Auth:  handler.NewAuthHandler(sessions, pages),
		User:  handler.NewUserHandler(pages, bus),
		Admin: handler.NewAdminHandler(pages),
		Live:  handler.NewLiveHandler(websocket.NewHub(bus)),
	}, nil, handler.Health(nil)))
	t.Cleanup(app.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return app, &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestAdminLoginLandsOnDashboardAcrossOneRefresh(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway(t)
	app, browser := newTestApp(t, gw)

	resp, err := browser.PostForm(app.URL+"/login", url.Values{"username": {"alice"}, "password": {"pw"}})
	require.NoError(t, err)
	body := readBody(t, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "/admin", resp.Request.URL.Path)
	require.Contains(t, body, "42 users")
	require.Contains(t, body, "bob")
	require.NotContains(t, body, `class="toast `)

	require.Equal(t, int32(1), gw.probes.Load())
	require.Equal(t, int32(1), gw.refreshCalls.Load())
	require.Equal(t, int32(2), gw.expired.Load())
}

func TestPageWithoutGatewaySessionEndsOnLogin(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		status int
		reason apiclient.Reason
		toast  string
	}{
		"no tokens":            {http.StatusUnauthorized, apiclient.ReasonNoTokens, "Please log in to continue."},
		"invalid access token": {http.StatusForbidden, apiclient.ReasonInvalidAccessToken, "Your session is invalid. Please log in again."},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			gw := newFakeGateway(t)
			gw.probeStatus = tc.status
			gw.probeReason = tc.reason
			app, browser := newTestApp(t, gw)

			for _, page := range []string{"/user", "/admin"} {
				resp, err := browser.Get(app.URL + page)
				require.NoError(t, err)
				body := readBody(t, resp)

				require.Equal(t, http.StatusOK, resp.StatusCode)
				require.Equal(t, "/login", resp.Request.URL.Path)
				require.Contains(t, body, "Sign in")
				require.Contains(t, body, tc.toast)
			}
		})
	}
}

func TestLoginFormRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	app, browser := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid username or password"}`))
	}))

	resp, err := browser.PostForm(app.URL+"/login", url.Values{"username": {"alice"}, "password": {"nope"}})
	require.NoError(t, err)
	body := readBody(t, resp)

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, body, "Invalid username or password.")
}

func TestHealth(t *testing.T) {
	t.Parallel()

	app, browser := newTestApp(t, http.NotFoundHandler())

	resp, err := browser.Get(app.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, "ok", readBody(t, resp))
}

func TestUserDashboardActions(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	groups := []model.Group{{ID: 1, ChatID: -1001, Title: "news", Kind: model.GroupSource}}
	running := false

	app, browser := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == gateway.PathLogin:
			_, _ = w.Write([]byte(`{"user":{"id":5,"username":"carol","name":"Carol","role":0}}`))
		case r.URL.Path == gateway.ProbePath(model.RoleUser):
			_, _ = w.Write([]byte(`{}`))
		case r.URL.Path == gateway.PathProfile:
			_ = json.NewEncoder(w).Encode(model.Profile{User: model.User{ID: 5, Name: "Carol"}})
		case r.URL.Path == gateway.PathGroups && r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(model.GroupList{Groups: groups})
		case r.URL.Path == gateway.PathForwardingStatus:
			_ = json.NewEncoder(w).Encode(model.ForwardingStatus{Running: running, Forwarded: 9})
		case r.URL.Path == gateway.PathForwardingStart:
			running = true
			_, _ = w.Write([]byte(`{"success":true,"message":"Forwarding started"}`))
		default:
			http.NotFound(w, r)
		}
	}))

	resp, err := browser.PostForm(app.URL+"/login", url.Values{"username": {"carol"}, "password": {"pw"}})
	require.NoError(t, err)
	body := readBody(t, resp)
	require.Equal(t, "/user", resp.Request.URL.Path)
	require.Contains(t, body, "news")
	require.Contains(t, body, "Start forwarding")

	resp, err = browser.PostForm(app.URL+"/user/forwarding/start", nil)
	require.NoError(t, err)
	body = readBody(t, resp)
	require.Equal(t, "/user", resp.Request.URL.Path)
	require.Contains(t, body, "Forwarding started")
	require.Contains(t, body, "Stop forwarding")

	resp, err = browser.PostForm(app.URL+"/user/credentials", url.Values{"api_id": {"123"}, "api_hash": {"h"}, "phone": {"555"}})
	require.NoError(t, err)
	body = readBody(t, resp)
	require.Contains(t, body, "phone must be in international format")

	resp, err = browser.Get(app.URL + "/user/status")
	require.NoError(t, err)
	var status struct {
		Success bool                   `json:"success"`
		Data    model.ForwardingStatus `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	require.True(t, status.Success)
	require.True(t, status.Data.Running)
}
