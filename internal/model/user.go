package model

import "time"

type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
}

type LoginResponse struct {
	User User `json:"user"`
}

type LogoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type TelegramSettings struct {
	APIID      int    `json:"api_id"`
	Phone      string `json:"phone"`
	Configured bool   `json:"configured"`
}

type Profile struct {
	User     User             `json:"user"`
	Telegram TelegramSettings `json:"telegram"`
}

type UserList struct {
	Users []AdminUserRow `json:"users"`
}

type AdminUserRow struct {
	ID         int        `json:"id"`
	Username   string     `json:"username"`
	Name       string     `json:"name"`
	Role       Role       `json:"role"`
	Forwarding bool       `json:"forwarding"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}
