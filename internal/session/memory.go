package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"fitclub-access/internal/security"
)

// MemoryStore is the in-memory Store implementation. A single mutex guards the
// table: Get performs a read-then-write (expiry delete or last-accessed
// refresh) that must not interleave with other operations on the same id.
//
// Sessions do not survive a process restart. For multi-instance deployments
// use RedisStore instead.
type MemoryStore struct {
	mu     sync.Mutex
	m      map[string]*Session
	maxAge time.Duration
	nowF   func() time.Time
}

// NewMemoryStore returns an empty in-memory session store. maxAge <= 0 selects
// DefaultMaxAge.
func NewMemoryStore(maxAge time.Duration) *MemoryStore {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &MemoryStore{
		m:      make(map[string]*Session),
		maxAge: maxAge,
		nowF:   time.Now().UTC,
	}
}

// Create registers a session for user under a fresh unguessable identifier.
func (s *MemoryStore) Create(ctx context.Context, user User) (string, error) {
	id, err := security.GenerateToken(32)
	if err != nil {
		return "", err
	}
	now := s.nowF()
	s.mu.Lock()
	s.m[id] = &Session{ID: id, User: user, CreatedAt: now, LastAccessed: now}
	s.mu.Unlock()
	return id, nil
}

// Get returns a copy of the session for id, refreshing LastAccessed. An entry
// past its max age is deleted and reported as absent; expiry is anchored to
// CreatedAt, so the refresh never extends the session's lifetime.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, bool, error) {
	now := s.nowF()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[id]
	if !ok {
		return nil, false, nil
	}
	if now.Sub(e.CreatedAt) > s.maxAge {
		delete(s.m, id)
		return nil, false, nil
	}
	e.LastAccessed = now
	cp := *e
	return &cp, true, nil
}

// Delete removes the session if present. Idempotent.
func (s *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[id]; !ok {
		return false, nil
	}
	delete(s.m, id)
	return true, nil
}

// CleanupExpired removes every entry past its max age and returns the count.
func (s *MemoryStore) CleanupExpired(ctx context.Context) (int, error) {
	now := s.nowF()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.m {
		if now.Sub(e.CreatedAt) > s.maxAge {
			delete(s.m, id)
			removed++
		}
	}
	return removed, nil
}

// Stats computes the aggregate view in one pass over the table. It does not
// mutate entries; expired-but-unswept sessions are counted, not deleted.
func (s *MemoryStore) Stats(ctx context.Context, recentN int) (*Stats, error) {
	if recentN <= 0 {
		recentN = 10
	}
	now := s.nowF()
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &Stats{ByRole: make(map[string]int)}
	var totalAge time.Duration
	active := make([]Session, 0, len(s.m))
	for _, e := range s.m {
		st.Total++
		if now.Sub(e.CreatedAt) > s.maxAge {
			st.Expired++
			continue
		}
		st.Active++
		st.ByRole[e.User.Role]++
		totalAge += now.Sub(e.CreatedAt)
		active = append(active, *e)
	}
	if st.Active > 0 {
		st.AvgActiveAge = totalAge / time.Duration(st.Active)
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].LastAccessed.After(active[j].LastAccessed)
	})
	if len(active) > recentN {
		active = active[:recentN]
	}
	st.MostRecent = active
	return st, nil
}

// SessionsForUser returns copies of the user's sessions, newest-created first.
func (s *MemoryStore) SessionsForUser(ctx context.Context, userID string) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Session
	for _, e := range s.m {
		if e.User.ID == userID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// TerminateAllForUser deletes every session belonging to userID.
func (s *MemoryStore) TerminateAllForUser(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.m {
		if e.User.ID == userID {
			delete(s.m, id)
			removed++
		}
	}
	return removed, nil
}

// Clear empties the table.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.m = make(map[string]*Session)
	s.mu.Unlock()
	return nil
}
