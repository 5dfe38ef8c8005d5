package model

import (
	"fmt"
	"strings"
)

// Role is the numeric role the gateway reports for a user.
type Role int

const (
	RoleUser  Role = 0
	RoleAdmin Role = 1
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleUser:
		return "user"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// LandingPath is the page a freshly logged-in user of this role is sent to.
func (r Role) LandingPath() string {
	if r == RoleAdmin {
		return "/admin"
	}
	return "/user"
}

func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "admin", "1":
		return RoleAdmin, nil
	case "user", "0":
		return RoleUser, nil
	default:
		return 0, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
}
