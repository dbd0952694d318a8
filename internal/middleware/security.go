package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"relay-backend/internal/metrics"
	"relay-backend/internal/security"
)

// SecurityMiddleware enforces the blocklist and rate limits in front of the
// relay endpoints.
type SecurityMiddleware struct {
	sec    *security.State
	logger *logrus.Logger
}

func NewSecurityMiddleware(sec *security.State, logger *logrus.Logger) *SecurityMiddleware {
	return &SecurityMiddleware{
		sec:    sec,
		logger: logger,
	}
}

// RequestIdentity derives the throttling identity for a request. Run after
// auth middleware so authenticated callers bucket by user rather than IP.
func RequestIdentity(c *gin.Context) string {
	return security.Identity(c.GetString("user_id"), c.ClientIP())
}

// Guard checks the blocklist and then the rate limit for the given class.
// Rate limit rejections feed the abuse detector, so hammering a 429 turns
// into a block.
func (m *SecurityMiddleware) Guard(class security.Class) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := RequestIdentity(c)
		namespace, key := security.IdentityBlockKey(identity)

		if blocked, remaining := m.sec.Blocklist.IsBlocked(namespace, key); blocked {
			m.logger.WithFields(logrus.Fields{
				"identity":  identity,
				"namespace": namespace,
				"path":      c.Request.URL.Path,
			}).Warn("Blocked identity rejected")

			c.Header("Retry-After", fmt.Sprintf("%d", int(remaining.Seconds())+1))
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "Access temporarily blocked",
				"message": fmt.Sprintf("Try again in %d seconds", int(remaining.Seconds())+1),
				"code":    "IDENTITY_BLOCKED",
			})
			c.Abort()
			return
		}

		if allowed, retryAfter := m.sec.RateLimiter.Allow(identity, class); !allowed {
			metrics.RateLimitHits.WithLabelValues(string(class)).Inc()
			m.sec.Abuse.Report(identity, security.PatternRateLimitHit)

			m.logger.WithFields(logrus.Fields{
				"identity": identity,
				"class":    string(class),
				"path":     c.Request.URL.Path,
			}).Warn("Rate limit exceeded")

			c.Header("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())+1))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "Rate limit exceeded",
				"message": fmt.Sprintf("Too many requests, retry in %d seconds", int(retryAfter.Seconds())+1),
				"code":    "RATE_LIMIT_EXCEEDED",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
