// Package gateway is the typed surface of the API gateway used by the pages.
// Every call goes through the session's apiclient.Client.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"tgforward-web/internal/apiclient"
	"tgforward-web/internal/model"
)

const (
	PathLogin               = "/api/v1/login"
	PathLogout              = "/api/v1/logout"
	PathProfile             = "/api/v1/profile"
	PathTelegramCredentials = "/api/v1/telegram/credentials"
	PathGroups              = "/api/v1/groups"
	PathForwardingStatus    = "/api/v1/forwarding/status"
	PathForwardingStart     = "/api/v1/forwarding/start"
	PathForwardingStop      = "/api/v1/forwarding/stop"
	PathAdminDashboard      = "/api/v1/admin/dashboard"
	PathAdminUsers          = "/api/v1/admin/users"

	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

var phonePattern = regexp.MustCompile(`^\+[0-9]{7,15}$`)

type Gateway struct {
	client *apiclient.Client
}

func New(client *apiclient.Client) *Gateway {
	return &Gateway{client: client}
}

func (g *Gateway) Client() *apiclient.Client {
	return g.client
}

// ProbePath is the endpoint that confirms a session may act as role.
func ProbePath(role model.Role) string {
	return "/api/v1/" + role.String()
}

func (g *Gateway) Probe(ctx context.Context, role model.Role) error {
	return g.client.Get(ctx, ProbePath(role), nil)
}

// Login signs in and returns the user together with the role the landing
// page is chosen from. The role comes from the access token's claim when the
// gateway set one, otherwise from the response body.
func (g *Gateway) Login(ctx context.Context, username string, password string) (model.User, model.Role, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return model.User{}, 0, fmt.Errorf("%w: username and password are required", model.ErrInvalidInput)
	}

	// A new login never carries the tokens of whoever used the session before.
	g.client.ClearSession()

	var resp model.LoginResponse
	err := g.client.Post(ctx, PathLogin, model.LoginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		code := apiclient.StatusCode(err)
		if code == http.StatusUnauthorized || code == http.StatusBadRequest || code == http.StatusNotFound {
			return model.User{}, 0, fmt.Errorf("%w: %w", model.ErrInvalidCredentials, err)
		}
		return model.User{}, 0, err
	}

	role := resp.User.Role
	if cookie, ok := g.client.Cookie(AccessTokenCookie); ok {
		if claimed, err := RoleFromAccessToken(cookie.Value); err == nil {
			role = claimed
		}
	}

	return resp.User, role, nil
}

func (g *Gateway) Logout(ctx context.Context) (model.LogoutResponse, error) {
	var resp model.LogoutResponse
	err := g.client.Post(ctx, PathLogout, nil, &resp)
	g.client.ClearSession()
	if err != nil && !errors.Is(err, apiclient.ErrLoginRequired) {
		return resp, err
	}
	return resp, nil
}

func (g *Gateway) Profile(ctx context.Context) (model.Profile, error) {
	var profile model.Profile
	err := g.client.Get(ctx, PathProfile, &profile)
	return profile, err
}

func (g *Gateway) SaveTelegramCredentials(ctx context.Context, req model.TelegramCredentialsRequest) error {
	req.APIHash = strings.TrimSpace(req.APIHash)
	req.Phone = strings.TrimSpace(req.Phone)

	if req.APIID <= 0 {
		return fmt.Errorf("%w: api_id must be positive", model.ErrInvalidInput)
	}
	if req.APIHash == "" {
		return fmt.Errorf("%w: api_hash is required", model.ErrInvalidInput)
	}
	if !phonePattern.MatchString(req.Phone) {
		return fmt.Errorf("%w: phone must be in international format", model.ErrInvalidInput)
	}

	return g.client.Put(ctx, PathTelegramCredentials, req, nil)
}

func (g *Gateway) Groups(ctx context.Context) ([]model.Group, error) {
	var list model.GroupList
	if err := g.client.Get(ctx, PathGroups, &list); err != nil {
		return nil, err
	}
	return list.Groups, nil
}

func (g *Gateway) AddGroup(ctx context.Context, req model.CreateGroupRequest) (model.Group, error) {
	req.Title = strings.TrimSpace(req.Title)
	if req.ChatID == 0 {
		return model.Group{}, fmt.Errorf("%w: chat_id is required", model.ErrInvalidInput)
	}
	if !req.Kind.Valid() {
		return model.Group{}, fmt.Errorf("%w: kind must be source or destination", model.ErrInvalidInput)
	}

	var group model.Group
	err := g.client.Post(ctx, PathGroups, req, &group)
	return group, err
}

func (g *Gateway) DeleteGroup(ctx context.Context, id int) error {
	if id <= 0 {
		return fmt.Errorf("%w: group id must be positive", model.ErrInvalidInput)
	}
	return g.client.Delete(ctx, PathGroups+"/"+strconv.Itoa(id))
}

func (g *Gateway) ForwardingStatus(ctx context.Context) (model.ForwardingStatus, error) {
	var status model.ForwardingStatus
	err := g.client.Get(ctx, PathForwardingStatus, &status)
	return status, err
}

func (g *Gateway) StartForwarding(ctx context.Context) (model.ActionResponse, error) {
	var resp model.ActionResponse
	err := g.client.Post(ctx, PathForwardingStart, nil, &resp)
	return resp, err
}

func (g *Gateway) StopForwarding(ctx context.Context) (model.ActionResponse, error) {
	var resp model.ActionResponse
	err := g.client.Post(ctx, PathForwardingStop, nil, &resp)
	return resp, err
}

func (g *Gateway) Dashboard(ctx context.Context) (model.Dashboard, error) {
	var dashboard model.Dashboard
	err := g.client.Get(ctx, PathAdminDashboard, &dashboard)
	return dashboard, err
}

func (g *Gateway) Users(ctx context.Context) ([]model.AdminUserRow, error) {
	var list model.UserList
	if err := g.client.Get(ctx, PathAdminUsers, &list); err != nil {
		return nil, err
	}
	return list.Users, nil
}

// RoleFromAccessToken reads the role claim without verifying the signature.
// It only picks a landing page; authorization is always confirmed by a probe.
func RoleFromAccessToken(token string) (model.Role, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, fmt.Errorf("decode access token: %w", err)
	}

	switch v := claims["role"].(type) {
	case float64:
		return model.Role(int(v)), nil
	case string:
		return model.ParseRole(v)
	default:
		return 0, errors.New("access token carries no role claim")
	}
}
