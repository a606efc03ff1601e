package session

import "context"

// Store defines the session registry consulted on every authenticated request.
//
// Absence is not an error: Get reports a missing, expired, or unknown session
// as ok=false, never as a non-nil error. Implementations return errors only
// for backing-store failures (the in-memory store never does).
type Store interface {
	// Create registers a new session for user and returns its identifier.
	Create(ctx context.Context, user User) (string, error)
	// Get returns the session for id if present and within its max age,
	// refreshing the last-accessed timestamp. An expired entry is deleted on
	// first lookup and reported as absent.
	Get(ctx context.Context, id string) (*Session, bool, error)
	// Delete removes the session if present and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
	// CleanupExpired sweeps the whole table once and returns how many expired
	// entries were removed. Invoked periodically by an external scheduler.
	CleanupExpired(ctx context.Context) (int, error)
	// Stats computes an aggregate view in one pass. Read-only.
	Stats(ctx context.Context, recentN int) (*Stats, error)
	// SessionsForUser returns the user's sessions, newest-created first.
	SessionsForUser(ctx context.Context, userID string) ([]Session, error)
	// TerminateAllForUser deletes every session for userID and returns the
	// number removed (forced logout across devices).
	TerminateAllForUser(ctx context.Context, userID string) (int, error)
	// Clear empties the store. Used for test teardown and admin reset.
	Clear(ctx context.Context) error
}
