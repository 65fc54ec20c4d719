// Package auth implements credential verification and the session store.
// Sessions are opaque random tokens with a fixed validity window; the
// database row created at issuance is the single source of truth and is
// never mutated afterwards.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/coordinote/server/internal/model"
	"github.com/coordinote/server/internal/repo"
)

// SessionTTL is the fixed validity window of a session, counted from
// issuance. There is no sliding expiration.
const SessionTTL = 72 * time.Hour

var (
	ErrMissingToken       = errors.New("missing token")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already taken")
)

// Service issues and validates sessions and verifies credentials
type Service struct {
	users    repo.UserRepo
	sessions repo.SessionRepo
}

// NewService creates a new auth service
func NewService(users repo.UserRepo, sessions repo.SessionRepo) *Service {
	return &Service{users: users, sessions: sessions}
}

// Register creates a user with a bcrypt-hashed password
func (s *Service) Register(ctx context.Context, username, password string) (model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, username, string(hash))
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return model.User{}, ErrUsernameTaken
		}
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login verifies the credentials and issues a new session token. An unknown
// username and a wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (model.User, string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.User{}, "", ErrInvalidCredentials
		}
		return model.User{}, "", fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return model.User{}, "", ErrInvalidCredentials
	}

	token, err := s.IssueSession(ctx, user.ID)
	if err != nil {
		return model.User{}, "", err
	}
	return user, token, nil
}

// IssueSession creates a session with a fresh UUIDv4 token, valid for
// SessionTTL from now. Tokens are never reused; a collision would be a
// data-integrity fault, not a normal error path.
func (s *Service) IssueSession(ctx context.Context, userID int64) (string, error) {
	now := time.Now().UTC()
	session := model.Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(SessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return session.Token, nil
}

// ValidateToken resolves a session token to its owning user. The three
// failure reasons stay distinguishable: ErrMissingToken when no token was
// supplied, ErrInvalidToken when no row matches, ErrTokenExpired when the
// fixed window has passed.
func (s *Service) ValidateToken(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrMissingToken
	}

	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return 0, ErrInvalidToken
		}
		return 0, fmt.Errorf("lookup session: %w", err)
	}

	if session.ExpiresAt.Before(time.Now().UTC()) {
		return 0, ErrTokenExpired
	}
	return session.UserID, nil
}
