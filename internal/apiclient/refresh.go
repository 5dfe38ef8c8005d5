package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"tgforward-web/internal/notify"
)

type refreshResult struct {
	token string
	err   error
}

type refreshBody struct {
	AccessToken      string `json:"access_token"`
	AccessTokenCamel string `json:"accessToken"`
}

func (b refreshBody) token() string {
	if b.AccessToken != "" {
		return b.AccessToken
	}
	return b.AccessTokenCamel
}

// refresh exchanges the refresh token for a new access token. At most one
// exchange is in flight per Client; callers arriving while it runs wait for
// its outcome instead of starting another.
func (c *Client) refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.refreshing {
		waiter := make(chan refreshResult, 1)
		c.waiters = append(c.waiters, waiter)
		pending := len(c.waiters)
		c.mu.Unlock()

		c.logger.Debug("waiting for in-flight token refresh", "queued", pending)
		select {
		case res := <-waiter:
			return res.token, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	// The exchange outlives the initiating caller: other requests may be
	// queued behind it.
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
	token, err := c.exchange(refreshCtx)
	cancel()

	c.mu.Lock()
	c.refreshing = false
	waiters := c.waiters
	c.waiters = nil
	switch {
	case err != nil:
		c.credential = ""
	case token != "":
		c.credential = token
	}
	c.mu.Unlock()

	for _, waiter := range waiters {
		waiter <- refreshResult{token: token, err: err}
	}
	c.observer.ObserveRefresh(err)

	if err != nil {
		c.logger.Warn("token refresh failed", "error", err, "waiters", len(waiters))
		c.notifier.Notify(notify.LevelWarning, "Your session has expired. Please log in again.")
		c.navigator.Navigate(c.loginPath)
		return "", err
	}

	c.logger.Info("access token refreshed", "waiters", len(waiters))
	return token, nil
}

func (c *Client) exchange(ctx context.Context) (string, error) {
	resp, err := c.send(ctx, Request{Method: http.MethodPost, Path: RefreshPath}, nil, "")
	if err != nil {
		return "", &RefreshError{Err: err}
	}

	if !isSuccess(resp.StatusCode) {
		return "", &RefreshError{StatusCode: resp.StatusCode, Reason: Reason(parseReason(resp.Body))}
	}

	var body refreshBody
	if len(strings.TrimSpace(string(resp.Body))) > 0 {
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			return "", &RefreshError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode refresh response: %w", err)}
		}
	}

	return body.token(), nil
}
