package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type errorEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Errors  []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func decodeErrorEnvelope(t *testing.T, body []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("failed to decode error envelope: %v (body=%s)", err, body)
	}
	return env
}

func newGateTestRouter(t *testing.T, tokens *TokenService) (*gin.Engine, *bool) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	handlerRan := false
	r := gin.New()
	r.GET("/protected", RequireAuth(tokens), func(c *gin.Context) {
		handlerRan = true
		identity, ok := CurrentIdentity(c)
		if !ok {
			t.Fatal("identity missing in protected handler")
		}
		c.JSON(http.StatusOK, gin.H{"user_id": identity.UserID, "username": identity.Username})
	})
	return r, &handlerRan
}

func TestRequireAuthRejectsWithoutValidBearer(t *testing.T) {
	tokens := newTestTokenService(t, "gate-secret", time.Hour)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic dXNlcjpwdw=="},
		{"lowercased scheme", "bearer abc"},
		{"scheme only", "Bearer"},
		{"scheme with blank token", "Bearer "},
		{"extra segments", "Bearer abc def"},
		{"token without scheme", "sometoken"},
	}
	for _, tc := range cases {
		r, handlerRan := newGateTestRouter(t, tokens)
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", tc.name, w.Code)
		}
		if *handlerRan {
			t.Fatalf("%s: downstream handler must not run", tc.name)
		}
		env := decodeErrorEnvelope(t, w.Body.Bytes())
		if env.Status != "error" || len(env.Errors) != 1 || env.Errors[0].Code != "AUTH_INVALID_TOKEN" {
			t.Fatalf("%s: unexpected envelope %+v", tc.name, env)
		}
	}
}

func TestRequireAuthRejectsPaddedPresentation(t *testing.T) {
	tokens := newTestTokenService(t, "gate-secret", time.Hour)
	token, err := tokens.Issue(42, "alice")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	// The token itself is valid; only its presentation is off.
	for _, header := range []string{
		"Bearer " + token + "   ",
		"  Bearer " + token,
		"bearer " + token,
		"Bearer  " + token,
	} {
		r, handlerRan := newGateTestRouter(t, tokens)
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, w.Code)
		}
		if *handlerRan {
			t.Fatalf("header %q: downstream handler must not run", header)
		}
		env := decodeErrorEnvelope(t, w.Body.Bytes())
		if env.Errors[0].Code != "AUTH_INVALID_TOKEN" {
			t.Fatalf("header %q: unexpected code %q", header, env.Errors[0].Code)
		}
	}
}

func TestRequireAuthRejectsBogusToken(t *testing.T) {
	tokens := newTestTokenService(t, "gate-secret", time.Hour)
	r, handlerRan := newGateTestRouter(t, tokens)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not.a.real.token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if *handlerRan {
		t.Fatal("downstream handler must not run")
	}
	env := decodeErrorEnvelope(t, w.Body.Bytes())
	if env.Errors[0].Code != "AUTH_INVALID_TOKEN" {
		t.Fatalf("unexpected code %q", env.Errors[0].Code)
	}
}

func TestRequireAuthRejectsExpiredToken(t *testing.T) {
	tokens := newTestTokenService(t, "gate-secret", time.Hour)
	issuedAt := time.Now().Add(-2 * time.Hour)
	tokens.now = func() time.Time { return issuedAt }
	expired, err := tokens.Issue(3, "carol")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	tokens.now = time.Now

	r, handlerRan := newGateTestRouter(t, tokens)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if *handlerRan {
		t.Fatal("downstream handler must not run")
	}
	env := decodeErrorEnvelope(t, w.Body.Bytes())
	if env.Errors[0].Code != "AUTH_TOKEN_EXPIRED" {
		t.Fatalf("unexpected code %q", env.Errors[0].Code)
	}
}

func TestRequireAuthAttachesIdentity(t *testing.T) {
	tokens := newTestTokenService(t, "gate-secret", time.Hour)
	token, err := tokens.Issue(42, "alice")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	r, handlerRan := newGateTestRouter(t, tokens)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body=%s)", w.Code, w.Body.String())
	}
	if !*handlerRan {
		t.Fatal("downstream handler should have run")
	}
	var resp struct {
		UserID   int64  `json:"user_id"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.UserID != 42 || resp.Username != "alice" {
		t.Fatalf("unexpected identity %+v", resp)
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"  Bearer abc", "", false},
		{"Bearer abc  ", "", false},
		{"  Bearer   abc  ", "", false},
		{"bearer abc", "", false},
		{"BEARER abc", "", false},
		{"Bearer  abc", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"", "", false},
		{"Basic abc", "", false},
		{"Bearer a b", "", false},
		{"Bearer a\tb", "", false},
	}
	for _, tc := range cases {
		token, ok := extractBearerToken(tc.header)
		if ok != tc.ok || token != tc.token {
			t.Fatalf("header %q: got (%q, %v), want (%q, %v)", tc.header, token, ok, tc.token, tc.ok)
		}
	}
}
