package model

import "time"

// SessionRecord is the stored form of a browser session. Data is sealed and
// opaque to the repository.
type SessionRecord struct {
	ID        string
	Data      []byte
	ExpiresAt time.Time
	UpdatedAt time.Time
}

func (r SessionRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
