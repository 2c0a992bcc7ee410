package httpd

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xrey167/molthub/httpd/ratelimit"
	"github.com/xrey167/molthub/registry"
)

const (
	ctxKeyPrincipal = "molthub.principal"
	ctxKeyTokenHash = "molthub.tokenHash"
)

// clientIP derives the caller address from the proxy headers the
// deployment fronts us with, in fixed precedence order.
func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("cf-connecting-ip")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("x-real-ip")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("x-forwarded-for"); fwd != "" {
		// First hop only; later hops are appended by proxies.
		first := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("fly-client-ip")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// bearerToken extracts the opaque token from the Authorization header,
// or "" when absent.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}

	return ""
}

// authMiddleware resolves an optional bearer token into a principal.
// Requests without a token proceed unauthenticated; handlers that need
// a principal call mustPrincipal.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.Request)
		if token == "" {
			c.Next()

			return
		}

		principal, _, err := s.svc.Authenticate(c.Request.Context(), token)
		if err != nil {
			renderError(c, err)
			c.Abort()

			return
		}

		c.Set(ctxKeyPrincipal, *principal)
		c.Set(ctxKeyTokenHash, registry.HashToken(token))
		c.Next()
	}
}

func principalFrom(c *gin.Context) (registry.Principal, bool) {
	v, ok := c.Get(ctxKeyPrincipal)
	if !ok {
		return registry.Principal{}, false
	}
	p, ok := v.(registry.Principal)

	return p, ok
}

func mustPrincipal(c *gin.Context) (registry.Principal, bool) {
	p, ok := principalFrom(c)
	if !ok {
		renderError(c, registry.Errf(registry.CodeUnauthorized, "authentication required"))
		c.Abort()
	}

	return p, ok
}

// rateLimitMiddleware charges the request against its class budgets
// and attaches the X-RateLimit-* headers.
func (s *Server) rateLimitMiddleware(write bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		class := "read"
		ipLimit := ratelimit.ReadIPLimit
		tokenLimit := ratelimit.ReadTokenLimit
		if write {
			class = "write"
			ipLimit = ratelimit.WriteIPLimit
			tokenLimit = ratelimit.WriteTokenLimit
		}

		keys := []ratelimit.BudgetKey{
			{Key: class + ":ip:" + clientIP(c.Request), Limit: ipLimit},
		}
		if hash, ok := c.Get(ctxKeyTokenHash); ok {
			keys = append(keys, ratelimit.BudgetKey{
				Key:   class + ":token:" + hash.(string),
				Limit: tokenLimit,
			})
		}

		decision := s.limiter.Check(keys)

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.Reset.Unix(), 10))

		if !decision.Allowed {
			retryAfter := int(decision.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "RateLimited",
					"message": "rate limit exceeded",
				},
			})

			return
		}

		c.Next()
	}
}
