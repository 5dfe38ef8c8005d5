package apiclient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// gatedGateway answers 401 "refresh required" to every request without the
// fresh token and holds the refresh call until `expected` of those failures
// have arrived, so all callers are guaranteed to overlap one refresh.
type gatedGateway struct {
	expected     int32
	refreshOK    bool
	failures     atomic.Int32
	refreshCalls atomic.Int32
	retried      atomic.Int32
	allFailed    chan struct{}
	once         sync.Once
}

func newGatedGateway(expected int, refreshOK bool) *gatedGateway {
	return &gatedGateway{expected: int32(expected), refreshOK: refreshOK, allFailed: make(chan struct{})}
}

func (g *gatedGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == RefreshPath {
		g.refreshCalls.Add(1)
		select {
		case <-g.allFailed:
		case <-time.After(5 * time.Second):
		}
		if !g.refreshOK {
			writeReason(w, http.StatusForbidden, ReasonInvalidRefreshToken)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"fresh"}`))
		return
	}

	if r.Header.Get("Authorization") == "Bearer fresh" {
		g.retried.Add(1)
		_, _ = w.Write([]byte(`{"ok":true}`))
		return
	}

	if g.failures.Add(1) == g.expected {
		g.once.Do(func() { close(g.allFailed) })
	}
	writeReason(w, http.StatusUnauthorized, ReasonRefreshRequired)
}

func runConcurrently(n int, fn func() error) []error {
	var wg sync.WaitGroup
	errs := make([]error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			errs[i] = fn()
		}(i)
	}
	wg.Wait()
	return errs
}

func TestConcurrentExpiredRequestsShareOneRefresh(t *testing.T) {
	t.Parallel()

	const n = 12
	gateway := newGatedGateway(n, true)
	client, navigator, notifier := newTestClient(t, gateway)

	errs := runConcurrently(n, func() error {
		var out struct {
			OK bool `json:"ok"`
		}
		if err := client.Get(context.Background(), "/api/v1/groups", &out); err != nil {
			return err
		}
		if !out.OK {
			return errors.New("retry did not reach the gateway")
		}
		return nil
	})

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), gateway.refreshCalls.Load())
	require.Equal(t, int32(n), gateway.failures.Load())
	require.Equal(t, int32(n), gateway.retried.Load())
	require.Equal(t, "fresh", client.Credential())
	require.Empty(t, navigator.calls())
	require.Empty(t, notifier.messages())
}

func TestRefreshFailureRejectsEveryWaiter(t *testing.T) {
	t.Parallel()

	const n = 8
	gateway := newGatedGateway(n, false)
	client, navigator, notifier := newTestClient(t, gateway, WithCredential("stale"))

	errs := runConcurrently(n, func() error {
		return client.Get(context.Background(), "/api/v1/forwarding/status", nil)
	})

	var first *RefreshError
	for _, err := range errs {
		var refreshErr *RefreshError
		require.ErrorAs(t, err, &refreshErr)
		require.ErrorIs(t, err, ErrLoginRequired)
		require.Equal(t, http.StatusForbidden, refreshErr.StatusCode)
		if first == nil {
			first = refreshErr
		}
		require.Same(t, first, refreshErr)
	}
	require.Equal(t, int32(1), gateway.refreshCalls.Load())
	require.Zero(t, gateway.retried.Load())
	require.Empty(t, client.Credential())
	require.Equal(t, []string{"/login"}, navigator.calls())
	require.Len(t, notifier.messages(), 1)
}

func TestWaiterCancellationLeavesRefreshRunning(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var refreshCalls atomic.Int32
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == RefreshPath {
			refreshCalls.Add(1)
			<-release
			_, _ = w.Write([]byte(`{"access_token":"fresh"}`))
			return
		}
		if r.Header.Get("Authorization") == "Bearer fresh" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeReason(w, http.StatusUnauthorized, ReasonRefreshRequired)
	}))

	initiator := make(chan error, 1)
	go func() {
		initiator <- client.Get(context.Background(), "/api/v1/user", nil)
	}()
	require.Eventually(t, func() bool { return refreshCalls.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	waiter := make(chan error, 1)
	go func() {
		waiter <- client.Get(ctx, "/api/v1/user", nil)
	}()
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.waiters) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-waiter, context.Canceled)

	close(release)
	require.NoError(t, <-initiator)
	require.Equal(t, int32(1), refreshCalls.Load())

	client.mu.Lock()
	defer client.mu.Unlock()
	require.False(t, client.refreshing)
	require.Empty(t, client.waiters)
}
