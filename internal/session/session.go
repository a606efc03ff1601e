// Package session provides the process-wide registry of authenticated
// sessions. Sessions expire a fixed duration after creation; lookups refresh
// the last-accessed timestamp but never extend the hard expiry.
package session

import "time"

// DefaultMaxAge is the hard session lifetime, anchored to creation time.
const DefaultMaxAge = 7 * 24 * time.Hour

// User is the identity snapshot embedded in a session at creation. It is a
// copy of the user record at login time; later profile changes do not
// propagate to live sessions.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`      // member, trainer, or admin
	UserType string `json:"user_type"` // staff or member partition
}

// Session is one authenticated session. Owned exclusively by the Store;
// callers receive copies and must not expect mutations to round-trip.
type Session struct {
	ID           string    `json:"id"`
	User         User      `json:"user"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
}

// ExpiresAt returns the fixed expiry instant for the session.
func (s *Session) ExpiresAt(maxAge time.Duration) time.Time {
	return s.CreatedAt.Add(maxAge)
}

// Stats is a read-only aggregate view over the session table.
type Stats struct {
	Total        int            `json:"total"`
	Active       int            `json:"active"`
	Expired      int            `json:"expired"` // past max age but not yet swept
	AvgActiveAge time.Duration  `json:"avg_active_age"`
	ByRole       map[string]int `json:"by_role"`
	MostRecent   []Session      `json:"most_recent"` // newest last-accessed first
}
