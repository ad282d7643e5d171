package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestTokenService(t *testing.T, secret string, lifetime time.Duration) *TokenService {
	t.Helper()
	svc, err := NewTokenService(secret, lifetime)
	if err != nil {
		t.Fatalf("NewTokenService error: %v", err)
	}
	return svc
}

func TestTokenServiceEmptySecret(t *testing.T) {
	_, err := NewTokenService("", time.Hour)
	if err == nil {
		t.Fatal("expected error for empty secret")
	}
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Kind != KindMisconfiguredSecret {
		t.Fatalf("expected MisconfiguredSecret kind, got %v", err)
	}
	if appErr.Code != "AUTH_CONFIG_ERROR" {
		t.Fatalf("unexpected code %q", appErr.Code)
	}
}

func TestTokenServiceIssueVerify(t *testing.T) {
	svc := newTestTokenService(t, "s3cret", 3600*time.Second)

	token, err := svc.Issue(42, "alice")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	identity, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if identity.UserID != 42 || identity.Username != "alice" {
		t.Fatalf("unexpected identity %+v", identity)
	}
}

func TestTokenServiceExpiry(t *testing.T) {
	svc := newTestTokenService(t, "s3cret", time.Hour)
	issuedAt := time.Now()
	svc.now = func() time.Time { return issuedAt }

	token, err := svc.Issue(7, "bob")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	// Still valid just before expiry.
	svc.now = func() time.Time { return issuedAt.Add(time.Hour - time.Second) }
	if _, err := svc.Verify(token); err != nil {
		t.Fatalf("token should be valid before expiry, got %v", err)
	}

	// Expired strictly after the window.
	svc.now = func() time.Time { return issuedAt.Add(time.Hour + time.Second) }
	_, err = svc.Verify(token)
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Kind != KindTokenExpired {
		t.Fatalf("expected TokenExpired, got %v", err)
	}
	if appErr.Code != "AUTH_TOKEN_EXPIRED" {
		t.Fatalf("unexpected code %q", appErr.Code)
	}
}

func TestTokenServiceTamperedToken(t *testing.T) {
	svc := newTestTokenService(t, "s3cret", time.Hour)

	token, err := svc.Issue(1, "carol")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("expected 3 token segments, got %d", len(parts))
	}

	cases := map[string]string{
		"tampered signature": parts[0] + "." + parts[1] + "." + "AAAA" + parts[2][4:],
		"tampered payload":   parts[0] + "." + "eyJzdWIiOiI5OTkifQ" + "." + parts[2],
		"truncated":          parts[0] + "." + parts[1],
		"garbage":            "not.a.token",
		"empty":              "",
	}
	for name, bad := range cases {
		_, err := svc.Verify(bad)
		var appErr *AppError
		if !errors.As(err, &appErr) || appErr.Kind != KindInvalidToken {
			t.Fatalf("%s: expected InvalidToken, got %v", name, err)
		}
	}
}

func TestTokenServiceWrongSecret(t *testing.T) {
	issuer := newTestTokenService(t, "secret-a", time.Hour)
	verifier := newTestTokenService(t, "secret-b", time.Hour)

	token, err := issuer.Issue(5, "dave")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	_, err = verifier.Verify(token)
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Kind != KindInvalidToken {
		t.Fatalf("expected InvalidToken for wrong secret, got %v", err)
	}
}

func TestTokenServiceDefaultLifetime(t *testing.T) {
	svc := newTestTokenService(t, "s3cret", 0)
	if svc.lifetime != DefaultTokenLifetime {
		t.Fatalf("expected default lifetime %v, got %v", DefaultTokenLifetime, svc.lifetime)
	}
}
