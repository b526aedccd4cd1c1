// -----------------------------------------------------------------------
// Persisted Session - Captured authentication artifacts (cookies + expiry)
// -----------------------------------------------------------------------

package models

import (
	"time"
)

// SessionCookie is one captured browser cookie. Expires is unix seconds;
// values <= 0 mean a session cookie with no expiry.
type SessionCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"http_only"`
	SameSite string  `json:"same_site,omitempty"`
}

// PersistedSession stores one captured login, keyed by (user, credential).
// At most one session per (UserID, CredentialID) should be treated as current:
// the most recent by CreatedAt wins on read, and a session whose ExpiresAt is
// nil or in the past is flipped inactive on next read (lazy expiry).
type PersistedSession struct {
	ID           string          `json:"id" badgerhold:"key"`
	UserID       string          `json:"user_id"`
	CredentialID string          `json:"credential_id"`
	Cookies      []SessionCookie `json:"cookies"`
	IsActive     bool            `json:"is_active"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Expired reports whether the session must be treated as inactive
func (s *PersistedSession) Expired(now time.Time) bool {
	return s.ExpiresAt == nil || s.ExpiresAt.Before(now)
}

// EarliestCookieExpiry computes the session expiry as the earliest expiry
// across all cookies that carry one. Returns nil when no cookie expires.
func EarliestCookieExpiry(cookies []SessionCookie) *time.Time {
	var earliest *time.Time
	for _, c := range cookies {
		if c.Expires <= 0 {
			continue
		}
		t := time.Unix(int64(c.Expires), 0)
		if earliest == nil || t.Before(*earliest) {
			earliest = &t
		}
	}
	return earliest
}
