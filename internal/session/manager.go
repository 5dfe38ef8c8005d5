package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"tgforward-web/internal/apiclient"
	"tgforward-web/internal/authstate"
	"tgforward-web/internal/event"
	"tgforward-web/internal/gateway"
	"tgforward-web/internal/guard"
	"tgforward-web/internal/logger"
	"tgforward-web/internal/metrics"
	"tgforward-web/internal/model"
	"tgforward-web/internal/nav"
	"tgforward-web/internal/notify"
)

const (
	DefaultCookieName      = "tgf_sid"
	DefaultTTL             = 24 * time.Hour
	DefaultAnonymousTTL    = 15 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute
)

// Repository stores sealed session records.
type Repository interface {
	Load(ctx context.Context, id string) (model.SessionRecord, error)
	Save(ctx context.Context, rec model.SessionRecord) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type Config struct {
	APIBaseURL     string
	RequestTimeout time.Duration
	RefreshTimeout time.Duration
	LoginPath      string
	CookieName     string
	CookieSecure   bool
	TTL            time.Duration
	// AnonymousTTL bounds how long a session that never signed in stays in
	// memory. It never exceeds TTL.
	AnonymousTTL time.Duration
}

type Manager struct {
	cfg      Config
	repo     Repository
	sealer   *Sealer
	bus      event.Bus
	recorder *metrics.Recorder
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	group    singleflight.Group
}

type Option func(*Manager)

func WithMetrics(recorder *metrics.Recorder) Option {
	return func(m *Manager) {
		m.recorder = recorder
	}
}

func NewManager(cfg Config, repo Repository, sealer *Sealer, bus event.Bus, opts ...Option) (*Manager, error) {
	if repo == nil || sealer == nil {
		return nil, errors.New("session repository and sealer are required")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.AnonymousTTL <= 0 {
		cfg.AnonymousTTL = DefaultAnonymousTTL
	}
	cfg.AnonymousTTL = min(cfg.AnonymousTTL, cfg.TTL)
	if cfg.LoginPath == "" {
		cfg.LoginPath = apiclient.DefaultLoginPath
	}

	m := &Manager{
		cfg:      cfg,
		repo:     repo,
		sealer:   sealer,
		bus:      bus,
		now:      time.Now,
		sessions: map[string]*Session{},
	}
	for _, opt := range opts {
		opt(m)
	}

	// Fail at startup, not on the first request, when the base URL is bad.
	if _, err := apiclient.New(cfg.APIBaseURL, nav.New("", nil), notify.NewToasts("", nil)); err != nil {
		return nil, err
	}
	return m, nil
}

type contextKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok && s != nil
}

// Guard resolves the route guard of the request's session.
func (m *Manager) Guard(r *http.Request) (*guard.Guard, bool) {
	s, ok := FromContext(r.Context())
	if !ok {
		return nil, false
	}
	return s.Guard, true
}

// Middleware attaches the browser's session to the request context, creating
// one when the cookie is missing or unknown, and persists any change to the
// gateway credentials once the handler returns.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.resolve(w, r)
		if err != nil {
			slog.Error("failed to resolve browser session", "error", err)
			http.Error(w, "session unavailable", http.StatusInternalServerError)
			return
		}

		logger.AddAttrs(r.Context(), "session", shortID(s.ID))
		if user, role, signedIn := s.User(); signedIn {
			logger.AddAttrs(r.Context(), "user_id", user.ID, "role", role.String())
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))

		if err := m.persist(context.WithoutCancel(r.Context()), s); err != nil {
			slog.Warn("failed to persist browser session", "session", shortID(s.ID), "error", err)
		}
	})
}

func (m *Manager) resolve(w http.ResponseWriter, r *http.Request) (*Session, error) {
	if cookie, err := r.Cookie(m.cfg.CookieName); err == nil {
		if _, parseErr := uuid.Parse(cookie.Value); parseErr == nil {
			s, err := m.get(r.Context(), cookie.Value)
			if err == nil {
				s.touch(m.now())
				return s, nil
			}
			if !errors.Is(err, model.ErrSessionNotFound) {
				return nil, err
			}
		}
	}

	s, err := m.create()
	if err != nil {
		return nil, err
	}
	http.SetCookie(w, m.cookie(s.ID, int(m.cfg.TTL.Seconds())))
	return s, nil
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (m *Manager) create() (*Session, error) {
	s, err := m.build(uuid.NewString(), state{})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.reportCount(count)
	slog.Debug("browser session created", "session", shortID(s.ID))
	return s, nil
}

// get returns a live session or restores it from the repository. Concurrent
// requests for the same unknown id share one restore.
func (m *Manager) get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	v, err, _ := m.group.Do(id, func() (any, error) {
		m.mu.RLock()
		existing, ok := m.sessions[id]
		m.mu.RUnlock()
		if ok {
			return existing, nil
		}

		restored, err := m.restore(ctx, id)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.sessions[id] = restored
		count := len(m.sessions)
		m.mu.Unlock()
		m.reportCount(count)
		return restored, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *Manager) restore(ctx context.Context, id string) (*Session, error) {
	rec, err := m.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	plaintext, err := m.sealer.Open(rec.Data)
	if err != nil {
		slog.Warn("discarding unreadable session record", "session", shortID(id), "error", err)
		_ = m.repo.Delete(ctx, id)
		return nil, model.ErrSessionNotFound
	}

	var st state
	if err := json.Unmarshal(plaintext, &st); err != nil {
		_ = m.repo.Delete(ctx, id)
		return nil, model.ErrSessionNotFound
	}

	s, err := m.build(id, st)
	if err != nil {
		return nil, err
	}
	s.restore(st)
	s.saved = plaintext
	s.savedAt = rec.UpdatedAt

	slog.Info("browser session restored", "session", shortID(id))
	return s, nil
}

func (m *Manager) build(id string, st state) (*Session, error) {
	toasts := notify.NewToasts(id, m.bus)
	navigator := nav.New(id, m.bus)

	opts := []apiclient.Option{
		apiclient.WithRequestTimeout(m.cfg.RequestTimeout),
		apiclient.WithRefreshTimeout(m.cfg.RefreshTimeout),
		apiclient.WithLoginPath(m.cfg.LoginPath),
		apiclient.WithLogger(slog.Default().With("session", shortID(id))),
		apiclient.WithCredential(st.Credential),
	}
	var guardOpts []guard.Option
	if m.recorder != nil {
		opts = append(opts, apiclient.WithObserver(m.recorder))
		guardOpts = append(guardOpts, guard.WithObserver(m.recorder))
		loginPath := m.cfg.LoginPath
		navigator.OnNavigate(func(target string) {
			if target == loginPath {
				m.recorder.LoginRedirect(target)
			}
		})
	}

	client, err := apiclient.New(m.cfg.APIBaseURL, navigator, toasts, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gateway client: %w", err)
	}
	gw := gateway.New(client)
	auth := authstate.New(id, m.bus)

	return &Session{
		ID:       id,
		Client:   client,
		Gateway:  gw,
		Auth:     auth,
		Nav:      navigator,
		Toasts:   toasts,
		Guard:    guard.New(gw, auth, navigator, m.cfg.LoginPath, guardOpts...),
		lastSeen: m.now(),
	}, nil
}

// persist writes the session when its stored state changed, or when the
// stored expiry is more than half a TTL old.
func (m *Manager) persist(ctx context.Context, s *Session) error {
	data, empty, err := s.snapshot()
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	now := m.now()
	s.mu.Lock()
	skip := s.ended ||
		(empty && s.saved == nil) ||
		(bytes.Equal(data, s.saved) && now.Sub(s.savedAt) < m.cfg.TTL/2)
	s.mu.Unlock()
	if skip {
		return nil
	}

	sealed, err := m.sealer.Seal(data)
	if err != nil {
		return err
	}
	if err := m.repo.Save(ctx, model.SessionRecord{ID: s.ID, Data: sealed, ExpiresAt: now.Add(m.cfg.TTL)}); err != nil {
		return err
	}

	s.mu.Lock()
	s.saved = data
	s.savedAt = now
	s.mu.Unlock()
	return nil
}

// End forgets the session everywhere and expires the browser cookie.
func (m *Manager) End(ctx context.Context, w http.ResponseWriter, s *Session) error {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()

	m.mu.Lock()
	delete(m.sessions, s.ID)
	count := len(m.sessions)
	m.mu.Unlock()
	m.reportCount(count)

	http.SetCookie(w, m.cookie("", -1))
	if err := m.repo.Delete(ctx, s.ID); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// Lookup returns a live session without touching the repository.
func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StartCleanupTicker evicts idle sessions from memory and expired records
// from the repository until ctx is done.
func (m *Manager) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanup(ctx)
		}
	}
}

func (m *Manager) cleanup(ctx context.Context) {
	evicted := m.evictIdle(m.now())

	removed, err := m.repo.DeleteExpired(ctx)
	if err != nil {
		slog.Warn("failed to remove expired session records", "error", err)
	}
	if evicted > 0 || removed > 0 {
		slog.Info("session cleanup", "evicted", evicted, "records_removed", removed)
	}
}

// evictIdle drops sessions idle for longer than TTL, and sessions that never
// signed in once they have been idle for AnonymousTTL.
func (m *Manager) evictIdle(now time.Time) int {
	cutoff := now.Add(-m.cfg.TTL)
	anonymousCutoff := now.Add(-m.cfg.AnonymousTTL)

	m.mu.Lock()
	evicted := 0
	for id, s := range m.sessions {
		limit := cutoff
		if _, _, signedIn := s.User(); !signedIn {
			limit = anonymousCutoff
		}
		if s.idleSince().Before(limit) {
			delete(m.sessions, id)
			evicted++
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	m.reportCount(count)
	return evicted
}

func (m *Manager) reportCount(n int) {
	if m.recorder != nil {
		m.recorder.SetSessions(n)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
