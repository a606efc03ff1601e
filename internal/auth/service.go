// Package auth implements credential login against the user store and session
// issuance through the session registry.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fitclub-access/internal/security"
	"fitclub-access/internal/session"
	userdomain "fitclub-access/internal/user/domain"
	userrepo "fitclub-access/internal/user/repository"
)

// ErrInvalidCredentials covers unknown email, wrong password, and deactivated
// accounts alike; the login response must not distinguish them.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Service validates credentials and manages the resulting sessions.
type Service struct {
	users    userrepo.Repository
	sessions session.Store
	hasher   *security.Hasher
}

// NewService returns an auth Service over the given user repository and
// session store.
func NewService(users userrepo.Repository, sessions session.Store, hasher *security.Hasher) *Service {
	return &Service{users: users, sessions: sessions, hasher: hasher}
}

// Login checks email and password within the given partition and, on success,
// creates a session and returns its identifier with the embedded snapshot.
func (s *Service) Login(ctx context.Context, email, password string, userType userdomain.Type) (string, *session.Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return "", nil, ErrInvalidCredentials
	}
	u, err := s.users.GetByEmail(ctx, userType, email)
	if err != nil {
		return "", nil, fmt.Errorf("auth: lookup user: %w", err)
	}
	if u == nil || !u.IsActive || u.PasswordHash == "" {
		return "", nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(u.PasswordHash, []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	snapshot := session.User{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Role:     u.Role,
		UserType: string(u.Type),
	}
	id, err := s.sessions.Create(ctx, snapshot)
	if err != nil {
		return "", nil, fmt.Errorf("auth: create session: %w", err)
	}
	sess, ok, err := s.sessions.Get(ctx, id)
	if err != nil || !ok {
		return "", nil, fmt.Errorf("auth: session vanished after create: %w", err)
	}
	return id, sess, nil
}

// Logout deletes the session. Unknown identifiers are a no-op.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	_, err := s.sessions.Delete(ctx, sessionID)
	return err
}
