package core

import (
	"context"
	"errors"
	"strings"
)

// AuthService orchestrates credential checks, token issuance, and password
// changes against the user repository.
type AuthService struct {
	users  UserRepository
	hasher PasswordHasher
	tokens *TokenService
}

func NewAuthService(users UserRepository, hasher PasswordHasher, tokens *TokenService) *AuthService {
	return &AuthService{users: users, hasher: hasher, tokens: tokens}
}

// Login verifies the username/password pair and issues a session token.
// Unknown user and wrong password produce the identical failure so usernames
// cannot be enumerated.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return "", ErrInvalidCredentials()
	}

	u, err := s.users.FindByUsername(ctx, username)
	if err != nil || u == nil {
		return "", ErrInvalidCredentials()
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		return "", ErrInvalidCredentials()
	}

	return s.tokens.Issue(u.ID, u.Username)
}

// ChangePassword verifies the session token and the old password before
// persisting a new hash. Nothing is written if any prior step fails.
func (s *AuthService) ChangePassword(ctx context.Context, token, oldPassword, newPassword string) error {
	identity, err := s.tokens.Verify(token)
	if err != nil {
		return err
	}

	u, err := s.users.FindByID(ctx, identity.UserID)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrUserNotFound()
	}
	if !s.hasher.Verify(oldPassword, u.PasswordHash) {
		return ErrInvalidCredentials()
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, u.ID, hash)
}

// Register creates a new account with a hashed password and the default role.
func (s *AuthService) Register(ctx context.Context, username, password string) (*UserRecord, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	id, err := s.users.Create(ctx, username, hash, "user")
	if err != nil {
		return nil, err
	}
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errors.New("created user not found")
	}
	return u, nil
}
