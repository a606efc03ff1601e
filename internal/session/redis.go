package session

import (
	"context"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"fitclub-access/internal/security"
)

const (
	sessionKeyPrefix = "session:"
	userIndexPrefix  = "user_sessions:"
)

// RedisStore is the Store implementation backed by Redis, for deployments
// where sessions must survive restarts or be shared across instances. Each
// session is a hash under session:<id> with a TTL equal to the max age, plus a
// per-user index set under user_sessions:<user_id>.
type RedisStore struct {
	client *redis.Client
	maxAge time.Duration
	nowF   func() time.Time
}

// NewRedisStore returns a session store over the given Redis client. maxAge <= 0
// selects DefaultMaxAge.
func NewRedisStore(client *redis.Client, maxAge time.Duration) *RedisStore {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &RedisStore{client: client, maxAge: maxAge, nowF: time.Now().UTC}
}

// Create registers a session for user. The session key carries a TTL so Redis
// reclaims entries even without a cleanup sweep.
func (s *RedisStore) Create(ctx context.Context, user User) (string, error) {
	id, err := security.GenerateToken(32)
	if err != nil {
		return "", err
	}
	now := s.nowF()
	key := sessionKeyPrefix + id
	fields := map[string]any{
		"user_id":       user.ID,
		"email":         user.Email,
		"name":          user.Name,
		"role":          user.Role,
		"user_type":     user.UserType,
		"created_at":    now.Format(time.RFC3339Nano),
		"last_accessed": now.Format(time.RFC3339Nano),
	}
	if err := s.client.HSet(ctx, key, fields).Err(); err != nil {
		return "", err
	}
	if err := s.client.Expire(ctx, key, s.maxAge).Err(); err != nil {
		return "", err
	}
	if err := s.client.SAdd(ctx, userIndexPrefix+user.ID, id).Err(); err != nil {
		return "", err
	}
	return id, nil
}

// Get returns the session for id, refreshing last_accessed. Entries past the
// max age are deleted and reported absent, mirroring MemoryStore even when the
// Redis TTL has not fired yet.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, bool, error) {
	key := sessionKeyPrefix + id
	data, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	sess, err := sessionFromHash(id, data)
	if err != nil {
		return nil, false, err
	}
	now := s.nowF()
	if now.Sub(sess.CreatedAt) > s.maxAge {
		if _, err := s.delete(ctx, id, sess.User.ID); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	sess.LastAccessed = now
	if err := s.client.HSet(ctx, key, "last_accessed", now.Format(time.RFC3339Nano)).Err(); err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// Delete removes the session if present.
func (s *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	userID, err := s.client.HGet(ctx, sessionKeyPrefix+id, "user_id").Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.delete(ctx, id, userID)
}

func (s *RedisStore) delete(ctx context.Context, id, userID string) (bool, error) {
	n, err := s.client.Del(ctx, sessionKeyPrefix+id).Result()
	if err != nil {
		return false, err
	}
	if userID != "" {
		if err := s.client.SRem(ctx, userIndexPrefix+userID, id).Err(); err != nil {
			return false, err
		}
	}
	return n > 0, nil
}

// CleanupExpired scans the session keyspace and removes entries past the max
// age. Redis TTLs reclaim most of these on their own; the sweep also prunes
// stale per-user index references.
func (s *RedisStore) CleanupExpired(ctx context.Context) (int, error) {
	now := s.nowF()
	removed := 0
	err := s.scanSessions(ctx, func(id string, sess *Session) error {
		if now.Sub(sess.CreatedAt) > s.maxAge {
			if _, err := s.delete(ctx, id, sess.User.ID); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Stats computes the aggregate view with one scan over the session keyspace.
func (s *RedisStore) Stats(ctx context.Context, recentN int) (*Stats, error) {
	if recentN <= 0 {
		recentN = 10
	}
	now := s.nowF()
	st := &Stats{ByRole: make(map[string]int)}
	var totalAge time.Duration
	var active []Session
	err := s.scanSessions(ctx, func(id string, sess *Session) error {
		st.Total++
		if now.Sub(sess.CreatedAt) > s.maxAge {
			st.Expired++
			return nil
		}
		st.Active++
		st.ByRole[sess.User.Role]++
		totalAge += now.Sub(sess.CreatedAt)
		active = append(active, *sess)
		return nil
	})
	if err != nil {
		return nil, err
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

// SessionsForUser resolves the per-user index, drops references whose session
// key has already expired, and returns the rest newest-created first.
func (s *RedisStore) SessionsForUser(ctx context.Context, userID string) ([]Session, error) {
	ids, err := s.client.SMembers(ctx, userIndexPrefix+userID).Result()
	if err != nil {
		return nil, err
	}
	var out []Session
	for _, id := range ids {
		data, err := s.client.HGetAll(ctx, sessionKeyPrefix+id).Result()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			_ = s.client.SRem(ctx, userIndexPrefix+userID, id).Err()
			continue
		}
		sess, err := sessionFromHash(id, data)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// TerminateAllForUser deletes every session in the user's index.
func (s *RedisStore) TerminateAllForUser(ctx context.Context, userID string) (int, error) {
	ids, err := s.client.SMembers(ctx, userIndexPrefix+userID).Result()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		n, err := s.client.Del(ctx, sessionKeyPrefix+id).Result()
		if err != nil {
			return removed, err
		}
		if n > 0 {
			removed++
		}
	}
	if err := s.client.Del(ctx, userIndexPrefix+userID).Err(); err != nil {
		return removed, err
	}
	return removed, nil
}

// Clear deletes every session and index key. Used for tests and admin reset.
func (s *RedisStore) Clear(ctx context.Context) error {
	for _, pattern := range []string{sessionKeyPrefix + "*", userIndexPrefix + "*"} {
		iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
				return err
			}
		}
		if err := iter.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) scanSessions(ctx context.Context, fn func(id string, sess *Session) error) error {
	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(data) == 0 {
			continue
		}
		id := key[len(sessionKeyPrefix):]
		sess, err := sessionFromHash(id, data)
		if err != nil {
			return err
		}
		if err := fn(id, sess); err != nil {
			return err
		}
	}
	return iter.Err()
}

func sessionFromHash(id string, data map[string]string) (*Session, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, data["created_at"])
	if err != nil {
		return nil, err
	}
	lastAccessed, err := time.Parse(time.RFC3339Nano, data["last_accessed"])
	if err != nil {
		return nil, err
	}
	return &Session{
		ID: id,
		User: User{
			ID:       data["user_id"],
			Email:    data["email"],
			Name:     data["name"],
			Role:     data["role"],
			UserType: data["user_type"],
		},
		CreatedAt:    createdAt,
		LastAccessed: lastAccessed,
	}, nil
}
