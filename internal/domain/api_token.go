package domain

import "time"

// APIToken authorises a caller of the HTTP API. Only the sha256 of the
// plain token is stored.
type APIToken struct {
	ID        int64
	Name      string
	TokenHash string
	Abilities string
	ExpiresAt *time.Time
}

func (t *APIToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}
