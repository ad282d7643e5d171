package core

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

const identityContextKey = "identity"

// extractBearerToken pulls the token out of an Authorization header value.
// The header must be exactly "Bearer " followed by one non-empty token: no
// surrounding whitespace, no lowercased scheme, no extra segments.
func extractBearerToken(header string) (string, bool) {
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	if strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

// RequireAuth verifies the bearer token on the request and attaches the
// resolved identity to the gin context. Requests without a valid token are
// rejected before any downstream handler runs.
func RequireAuth(tokens *TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := extractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			respondAppError(c, ErrInvalidToken())
			c.Abort()
			return
		}

		identity, err := tokens.Verify(token)
		if err != nil {
			respondAnyError(c, err)
			c.Abort()
			return
		}

		c.Set(identityContextKey, identity)
		c.Next()
	}
}

// CurrentIdentity returns the identity attached by RequireAuth.
func CurrentIdentity(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityContextKey)
	if !ok {
		return Identity{}, false
	}
	identity, ok := v.(Identity)
	return identity, ok
}

// AdminOnly requires the authenticated user to hold the admin role. Role is
// not a token claim, so it is loaded from persistence per request.
func AdminOnly(users UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := CurrentIdentity(c)
		if !ok {
			respondAppError(c, ErrInvalidToken())
			c.Abort()
			return
		}
		u, err := users.FindByID(c.Request.Context(), identity.UserID)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load user")
			c.Abort()
			return
		}
		if u == nil || u.Role != "admin" {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "admin privileges required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// OriginRefererMiddleware validates Origin/Referer against allowed list and sets CORS headers.
func OriginRefererMiddleware(cfg Config) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.ToLower(o)] = struct{}{}
	}

	isAllowed := func(origin string) bool {
		if origin == "" {
			// Same-origin navigation (no Origin header) is allowed.
			return true
		}
		if len(allowed) == 0 {
			return false
		}
		origin = strings.ToLower(origin)
		_, ok := allowed[origin]
		return ok
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		referer := c.GetHeader("Referer")
		if origin == "" && referer != "" {
			if u, err := url.Parse(referer); err == nil {
				origin = u.Scheme + "://" + u.Host
			}
		}

		// Preflight handling
		if c.Request.Method == http.MethodOptions && origin != "" {
			if !isAllowed(origin) {
				respondError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
				c.Abort()
				return
			}
			setCORSHeaders(c, origin)
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}

		if !isAllowed(origin) {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
			c.Abort()
			return
		}
		if origin != "" {
			setCORSHeaders(c, origin)
		}
		c.Next()
	}
}

func setCORSHeaders(c *gin.Context, origin string) {
	c.Header("Access-Control-Allow-Origin", origin)
	c.Header("Vary", "Origin")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
}
