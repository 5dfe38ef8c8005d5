package model

import "time"

type GroupKind string

const (
	GroupSource      GroupKind = "source"
	GroupDestination GroupKind = "destination"
)

func (k GroupKind) Valid() bool {
	return k == GroupSource || k == GroupDestination
}

type Group struct {
	ID     int       `json:"id"`
	ChatID int64     `json:"chat_id"`
	Title  string    `json:"title"`
	Kind   GroupKind `json:"kind"`
}

type GroupList struct {
	Groups []Group `json:"groups"`
}

type ForwardingStatus struct {
	Running   bool       `json:"running"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	Forwarded int64      `json:"forwarded"`
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type Dashboard struct {
	TotalUsers        int          `json:"total_users"`
	ActiveForwarders  int          `json:"active_forwarders"`
	MessagesForwarded int64        `json:"messages_forwarded"`
	Daily             []DailyCount `json:"daily"`
}
