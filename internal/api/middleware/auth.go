package middleware

import (
	"context"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cryptogate/gateway_service/pkg/auth"
	"github.com/cryptogate/gateway_service/pkg/logger"
)

// AuthPolicy decides what a route does with the bearer token
type AuthPolicy string

const (
	// AuthRequired rejects requests without a valid token
	AuthRequired AuthPolicy = "required"
	// AuthOptional attaches the user when a valid token is present
	AuthOptional AuthPolicy = "optional"
	// AuthNone never looks at the token
	AuthNone AuthPolicy = "none"
)

// TokenValidator is satisfied by *auth.Validator
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*auth.Claims, error)
}

// RoutePolicy resolves the auth policy of a route from configured
// patterns. Patterns are relative to the API prefix; "meld/*" matches
// every route below meld, anything else matches exactly. Webhook routes
// are always AuthNone since providers authenticate them by signature.
type RoutePolicy struct {
	prefix   string
	required []string
	optional []string
}

// NewRoutePolicy creates a RoutePolicy for routes under prefix
func NewRoutePolicy(prefix string, required, optional []string) *RoutePolicy {
	clean := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, p := range in {
			if p = strings.Trim(strings.TrimSpace(p), "/"); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return &RoutePolicy{
		prefix:   strings.Trim(prefix, "/"),
		required: clean(required),
		optional: clean(optional),
	}
}

func matchRoute(pattern, route string) bool {
	if base, ok := strings.CutSuffix(pattern, "/*"); ok {
		return route == base || strings.HasPrefix(route, base+"/")
	}
	if strings.ContainsAny(pattern, "*?[") {
		ok, _ := path.Match(pattern, route)
		return ok
	}
	return pattern == route
}

// Resolve returns the policy for a gin route template such as
// "/api/v1/exolix/transactions"
func (p *RoutePolicy) Resolve(fullPath string) AuthPolicy {
	route := strings.Trim(fullPath, "/")
	if p.prefix != "" {
		route = strings.Trim(strings.TrimPrefix(route, p.prefix), "/")
	}
	if route == "webhook" || strings.HasSuffix(route, "/webhook") {
		return AuthNone
	}
	for _, pattern := range p.required {
		if matchRoute(pattern, route) {
			return AuthRequired
		}
	}
	for _, pattern := range p.optional {
		if matchRoute(pattern, route) {
			return AuthOptional
		}
	}
	return AuthOptional
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":       "UNAUTHORIZED",
		"message":    message,
		"request_id": c.GetString("request_id"),
	})
}

// Authentication enforces the route's policy. Authenticated requests carry
// user_id (string), user_email and user_role in the gin context.
func Authentication(policy *RoutePolicy, validator TokenValidator, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		mode := policy.Resolve(c.FullPath())
		if mode == AuthNone {
			c.Next()
			return
		}

		token, present := bearerToken(c)
		if !present {
			if mode == AuthRequired {
				if c.GetHeader("Authorization") != "" {
					abortUnauthorized(c, "Invalid authorization format")
					return
				}
				abortUnauthorized(c, "Authorization header required")
				return
			}
			c.Next()
			return
		}

		claims, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			if mode == AuthRequired {
				log.Debug("Rejected bearer token", "error", err, "path", c.FullPath())
				abortUnauthorized(c, "Invalid token")
				return
			}
			// optional routes fall back to anonymous
			log.Debug("Ignoring invalid bearer token on optional route", "error", err, "path", c.FullPath())
			c.Next()
			return
		}

		c.Set("user_id", claims.UserID.String())
		c.Set("user_email", claims.Email)
		c.Set("user_role", claims.Role)
		c.Next()
	}
}
