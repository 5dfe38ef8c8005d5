package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"tgforward-web/internal/notify"
)

const (
	DefaultRequestTimeout = 15 * time.Second
	DefaultRefreshTimeout = 10 * time.Second
	DefaultLoginPath      = "/login"

	RefreshPath = "/api/v1/refresh-token"

	maxBodyBytes = 4 << 20
)

// Navigator moves the browser session to another page. Implementations must
// tolerate repeated calls for the same target.
type Navigator interface {
	Navigate(target string) bool
}

// Notifier shows a non-blocking message to the user.
type Notifier interface {
	Notify(level notify.Level, message string)
}

// Observer is told how calls and refreshes ended.
type Observer interface {
	ObserveRequest(method string, outcome string)
	ObserveRefresh(err error)
}

type noopObserver struct{}

func (noopObserver) ObserveRequest(string, string) {}
func (noopObserver) ObserveRefresh(error)          {}

// Outcomes reported to an Observer.
const (
	OutcomeOK        = "ok"
	OutcomeAuth      = "auth"
	OutcomeStatus    = "status"
	OutcomeTransport = "transport"
)

// Request describes one gateway call. Path is relative to the base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) Decode(v any) error {
	if v == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// Client is an HTTP client for the API gateway whose every call goes through
// the access/refresh token lifecycle. One Client serves one browser session.
type Client struct {
	baseURL        *url.URL
	httpClient     *http.Client
	navigator      Navigator
	notifier       Notifier
	observer       Observer
	logger         *slog.Logger
	loginPath      string
	requestTimeout time.Duration
	refreshTimeout time.Duration

	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshResult
	credential string
}

type Option func(*Client)

// WithHTTPClient replaces the transport client. A client without a cookie jar
// gets one.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.requestTimeout = timeout
		}
	}
}

func WithRefreshTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.refreshTimeout = timeout
		}
	}
}

func WithLoginPath(path string) Option {
	return func(c *Client) {
		if strings.TrimSpace(path) != "" {
			c.loginPath = path
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(c *Client) {
		if observer != nil {
			c.observer = observer
		}
	}
}

// WithCredential seeds the default bearer credential, e.g. when a session is
// restored from the store.
func WithCredential(token string) Option {
	return func(c *Client) {
		c.credential = token
	}
}

func New(baseURL string, navigator Navigator, notifier Notifier, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must be absolute http(s)", baseURL)
	}
	if navigator == nil {
		return nil, errors.New("navigator is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}

	c := &Client{
		baseURL:        parsed,
		navigator:      navigator,
		notifier:       notifier,
		observer:       noopObserver{},
		logger:         slog.Default(),
		loginPath:      DefaultLoginPath,
		requestTimeout: DefaultRequestTimeout,
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.httpClient.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		c.httpClient.Jar = jar
	}

	return c, nil
}

func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Credential returns the default bearer token attached to every call.
func (c *Client) Credential() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.credential
}

func (c *Client) Cookies() []*http.Cookie {
	return c.httpClient.Jar.Cookies(c.baseURL)
}

// Cookie returns the named gateway cookie, if the jar holds it.
func (c *Client) Cookie(name string) (*http.Cookie, bool) {
	for _, cookie := range c.Cookies() {
		if cookie.Name == name {
			return cookie, true
		}
	}
	return nil, false
}

func (c *Client) SetCookies(cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	c.httpClient.Jar.SetCookies(c.baseURL, cookies)
}

// ClearSession drops the gateway cookies and the default credential.
func (c *Client) ClearSession() {
	expired := make([]*http.Cookie, 0)
	for _, cookie := range c.Cookies() {
		expired = append(expired, &http.Cookie{Name: cookie.Name, Value: "", Path: "/", MaxAge: -1})
	}
	c.SetCookies(expired)

	c.mu.Lock()
	c.credential = ""
	c.mu.Unlock()
}

// dropCredential forgets the default bearer token. The gateway cookies are
// left to the gateway, which invalidates them itself.
func (c *Client) dropCredential() {
	c.mu.Lock()
	c.credential = ""
	c.mu.Unlock()
}

// Do sends req and resolves what it can of the auth lifecycle. Callers only
// see an error when the failure could not be recovered.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.do(ctx, req)
	c.observer.ObserveRequest(req.Method, outcomeOf(err))
	return resp, err
}

func (c *Client) do(ctx context.Context, req Request) (*Response, error) {
	payload, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, req, payload, c.Credential())
	if err != nil {
		return nil, c.transportFailure(req, err)
	}
	if isSuccess(resp.StatusCode) {
		return resp, nil
	}

	return c.handleFailure(ctx, req, payload, resp, false)
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, Request{Method: http.MethodGet, Path: path}, out)
}

func (c *Client) Post(ctx context.Context, path string, in any, out any) error {
	return c.doJSON(ctx, Request{Method: http.MethodPost, Path: path, Body: in}, out)
}

func (c *Client) Put(ctx context.Context, path string, in any, out any) error {
	return c.doJSON(ctx, Request{Method: http.MethodPut, Path: path, Body: in}, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.doJSON(ctx, Request{Method: http.MethodDelete, Path: path}, nil)
}

func (c *Client) doJSON(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

func (c *Client) handleFailure(ctx context.Context, req Request, payload []byte, resp *Response, retried bool) (*Response, error) {
	reason := parseReason(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized && reason == string(ReasonNoTokens):
		return nil, c.terminate(&AuthError{StatusCode: resp.StatusCode, Reason: ReasonNoTokens},
			notify.LevelWarning, "Please log in to continue.")

	case resp.StatusCode == http.StatusUnauthorized && reason == string(ReasonRefreshRequired):
		if retried {
			return nil, c.terminate(&AuthError{StatusCode: resp.StatusCode, Reason: ReasonRefreshRequired},
				notify.LevelWarning, "Your session has expired. Please log in again.")
		}

		token, err := c.refresh(ctx)
		if err != nil {
			return nil, err
		}
		if token == "" {
			token = c.Credential()
		}

		c.logger.Debug("retrying request after token refresh", "method", req.Method, "path", req.Path)
		retry, err := c.send(ctx, req, payload, token)
		if err != nil {
			return nil, c.transportFailure(req, err)
		}
		if isSuccess(retry.StatusCode) {
			return retry, nil
		}
		return c.handleFailure(ctx, req, payload, retry, true)

	case resp.StatusCode == http.StatusForbidden && reason == string(ReasonInvalidAccessToken):
		return nil, c.terminate(&AuthError{StatusCode: resp.StatusCode, Reason: ReasonInvalidAccessToken},
			notify.LevelWarning, "Your session is invalid. Please log in again.")

	case resp.StatusCode == http.StatusForbidden && reason == string(ReasonInvalidRefreshToken):
		return nil, c.terminate(&AuthError{StatusCode: resp.StatusCode, Reason: ReasonInvalidRefreshToken},
			notify.LevelWarning, "Your session has expired. Please log in again.")
	}

	c.notifier.Notify(notify.LevelError, fmt.Sprintf("Request failed with status code %d", resp.StatusCode))
	c.logger.Warn("gateway request failed",
		"method", req.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"reason", reason,
	)
	return nil, &StatusError{StatusCode: resp.StatusCode, Reason: reason, Body: resp.Body}
}

func (c *Client) terminate(err error, level notify.Level, message string) error {
	c.logger.Warn("session cannot continue", "error", err)
	c.dropCredential()
	c.notifier.Notify(level, message)
	c.navigator.Navigate(c.loginPath)
	return err
}

func (c *Client) transportFailure(req Request, err error) error {
	wrapped := &TransportError{Method: req.Method, Path: req.Path, Err: err}
	if errors.Is(err, context.Canceled) {
		return wrapped
	}

	message := "Network error. Please try again."
	if errors.Is(err, context.DeadlineExceeded) {
		message = "The request timed out. Please try again."
	}
	c.notifier.Notify(notify.LevelError, message)
	c.logger.Warn("gateway unreachable", "method", req.Method, "path", req.Path, "error", err)
	return wrapped
}

// send performs one round trip bounded by the request timeout and reads the
// whole body before returning.
func (c *Client) send(ctx context.Context, req Request, payload []byte, bearer string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	target := c.resolve(req.Path, req.Query)

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if len(data) > maxBodyBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, maxBodyBytes)
	}

	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return data, nil
}

func outcomeOf(err error) string {
	var transportErr *TransportError
	var statusErr *StatusError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrLoginRequired):
		return OutcomeAuth
	case errors.As(err, &transportErr):
		return OutcomeTransport
	case errors.As(err, &statusErr):
		return OutcomeStatus
	default:
		return OutcomeTransport
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// parseReason extracts the failure reason from bodies shaped
// {"message": "..."}, {"error": "..."} or {"error": {"message": "..."}}.
func parseReason(body []byte) string {
	var parsed struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(parsed.Message); msg != "" {
		return msg
	}
	if len(parsed.Error) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(parsed.Error, &asString); err == nil {
		return strings.TrimSpace(asString)
	}

	var asObject struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(parsed.Error, &asObject); err == nil {
		return strings.TrimSpace(asObject.Message)
	}

	return ""
}
