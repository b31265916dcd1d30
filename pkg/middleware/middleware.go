// Package middleware provides the gin HTTP-layer cross-cutting
// concerns: rate limiting and JWT/RBAC enforcement. Carried over from
// the teacher's pkg/middleware/middleware.go (per-path token-bucket
// limiters, visitor cleanup goroutine) with JWTAuth generalized to also
// enforce the role hierarchy from internal/auth.
package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/ksred/tradecore/internal/auth"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a per-client, per-path token-bucket rate limiter, the
// shape the teacher used for authLimit/tradingLimit/statusLimit.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	r        rate.Limit
	burst    int
}

// NewLimiter builds a limiter allowing r requests/sec per client with
// the given burst, and starts its background cleanup goroutine.
func NewLimiter(r rate.Limit, burst int) *Limiter {
	l := &Limiter{
		visitors: make(map[string]*visitor),
		r:        r,
		burst:    burst,
	}
	go l.cleanupVisitors()
	return l
}

func (l *Limiter) getVisitor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, exists := l.visitors[key]
	if !exists {
		lim := rate.NewLimiter(l.r, l.burst)
		l.visitors[key] = &visitor{limiter: lim, lastSeen: time.Now()}
		return lim
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (l *Limiter) cleanupVisitors() {
	for range time.Tick(time.Minute) {
		l.mu.Lock()
		for key, v := range l.visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(l.visitors, key)
			}
		}
		l.mu.Unlock()
	}
}

// RateLimit gates requests by client IP against this limiter's bucket.
func (l *Limiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := l.getVisitor(c.ClientIP())
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

const claimsKey = "auth_claims"

// JWTAuth validates the bearer token on every request and stores the
// parsed claims in the gin context for downstream handlers.
func JWTAuth(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		claims, err := svc.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole enforces that the authenticated principal's role
// satisfies required; must run after JWTAuth.
func RequireRole(required auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := c.Get(claimsKey)
		claims, _ := raw.(*auth.Claims)
		if !ok || !auth.RequireRole(claims, required) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		c.Next()
	}
}

// Claims retrieves the authenticated principal's claims from the gin
// context, set earlier by JWTAuth.
func Claims(c *gin.Context) *auth.Claims {
	raw, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := raw.(*auth.Claims)
	return claims
}
