package apiclient

import (
	"errors"
	"fmt"
	"strings"
)

// Reason is the failure reason the gateway reports alongside 401 and 403.
type Reason string

const (
	ReasonNoTokens            Reason = "No tokens provided"
	ReasonRefreshRequired     Reason = "Access token missing, refresh required"
	ReasonInvalidAccessToken  Reason = "Invalid access token"
	ReasonInvalidRefreshToken Reason = "Invalid refresh token"
)

// ErrLoginRequired matches every failure after which the session cannot
// continue without a new login.
var ErrLoginRequired = errors.New("login required")

var ErrResponseTooLarge = errors.New("response body too large")

// AuthError is a terminal authentication failure reported by the gateway.
type AuthError struct {
	StatusCode int
	Reason     Reason
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%d): %s", e.StatusCode, e.Reason)
}

func (e *AuthError) Is(target error) bool {
	return target == ErrLoginRequired
}

// RefreshError reports a failed refresh-token exchange. Every request that
// waited on the same refresh receives the same *RefreshError.
type RefreshError struct {
	StatusCode int
	Reason     Reason
	Err        error
}

func (e *RefreshError) Error() string {
	var b strings.Builder
	b.WriteString("token refresh failed")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(string(e.Reason))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

func (e *RefreshError) Is(target error) bool {
	return target == ErrLoginRequired
}

// StatusError is any other non-2xx answer.
type StatusError struct {
	StatusCode int
	Reason     string
	Body       []byte
}

func (e *StatusError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("request failed with status code %d: %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("request failed with status code %d", e.StatusCode)
}

// TransportError wraps failures that produced no HTTP response at all.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.StatusCode
	}
	var refreshErr *RefreshError
	if errors.As(err, &refreshErr) {
		return refreshErr.StatusCode
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
