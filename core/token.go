package core

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenLifetime applies when the configured lifetime is zero.
const DefaultTokenLifetime = time.Hour

// Identity is the authenticated principal attached to a request context for
// the duration of one request.
type Identity struct {
	UserID   int64
	Username string
}

type sessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies time-bounded session tokens. The signing
// secret and lifetime are fixed at construction and never mutated afterwards,
// so the service is safe for concurrent use.
type TokenService struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// NewTokenService fails on an empty secret. Callers treat that as a startup
// precondition: the process must not accept requests without a signing key.
func NewTokenService(secret string, lifetime time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, ErrMisconfiguredSecret()
	}
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}
	return &TokenService{
		secret:   []byte(secret),
		lifetime: lifetime,
		now:      time.Now,
	}, nil
}

// Issue returns a signed HS256 token embedding the user identity, the issue
// time, and an expiry at issue time + lifetime.
func (s *TokenService) Issue(userID int64, username string) (string, error) {
	issuedAt := s.now()
	claims := sessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.lifetime)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks signature and validity window. Expired tokens fail with
// ErrTokenExpired; every other failure (bad signature, malformed structure,
// wrong algorithm) collapses into ErrInvalidToken.
func (s *TokenService) Verify(token string) (Identity, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired()
		}
		return Identity{}, ErrInvalidToken()
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Identity{}, ErrInvalidToken()
	}
	return Identity{UserID: userID, Username: claims.Username}, nil
}
