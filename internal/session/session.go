// Package session binds browser sessions to their gateway client and gate.
package session

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"tgforward-web/internal/apiclient"
	"tgforward-web/internal/authstate"
	"tgforward-web/internal/gateway"
	"tgforward-web/internal/guard"
	"tgforward-web/internal/model"
	"tgforward-web/internal/nav"
	"tgforward-web/internal/notify"
)

// Session is everything one browser tab set shares: the gateway client with
// its refresh queue, the auth flag, the navigator and the toasts.
type Session struct {
	ID      string
	Client  *apiclient.Client
	Gateway *gateway.Gateway
	Auth    *authstate.Store
	Nav     *nav.Navigator
	Toasts  *notify.Toasts
	Guard   *guard.Guard

	mu       sync.Mutex
	user     model.User
	role     model.Role
	signedIn bool
	lastSeen time.Time
	saved    []byte
	savedAt  time.Time
	ended    bool
}

// state is what survives a restart. The auth flag is deliberately absent:
// a restored session always probes again.
type state struct {
	Credential string         `json:"credential,omitempty"`
	Cookies    []storedCookie `json:"cookies,omitempty"`
	User       model.User     `json:"user"`
	Role       model.Role     `json:"role"`
	SignedIn   bool           `json:"signed_in"`
}

type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// User returns who signed in on this session and the role used to pick the
// landing page. ok is false before a login.
func (s *Session) User() (model.User, model.Role, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, s.role, s.signedIn
}

func (s *Session) SetUser(user model.User, role model.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
	s.role = role
	s.signedIn = true
}

func (s *Session) ClearUser() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = model.User{}
	s.role = model.RoleUser
	s.signedIn = false
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// snapshot encodes the session. empty reports a session with nothing worth
// storing yet.
func (s *Session) snapshot() (data []byte, empty bool, err error) {
	st := state{Credential: s.Client.Credential()}
	for _, c := range s.Client.Cookies() {
		st.Cookies = append(st.Cookies, storedCookie{Name: c.Name, Value: c.Value})
	}

	s.mu.Lock()
	st.User = s.user
	st.Role = s.role
	st.SignedIn = s.signedIn
	s.mu.Unlock()

	empty = st.Credential == "" && len(st.Cookies) == 0 && !st.SignedIn
	data, err = json.Marshal(st)
	return data, empty, err
}

func (s *Session) restore(st state) {
	cookies := make([]*http.Cookie, 0, len(st.Cookies))
	for _, c := range st.Cookies {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	s.Client.SetCookies(cookies)

	s.mu.Lock()
	s.user = st.User
	s.role = st.Role
	s.signedIn = st.SignedIn
	s.mu.Unlock()
}
