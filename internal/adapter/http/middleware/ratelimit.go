package middleware

import (
	"fmt"
	"strconv"
	"time"

	redisStore "tradie-marketplace/internal/adapter/storage/redis"
	"tradie-marketplace/pkg/apperror"
	"tradie-marketplace/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// Rate limit groups.
const (
	GroupRequests = "requests"
	GroupUnlock   = "unlock"
	GroupQuotes   = "quotes"
	GroupRecharge = "wallet_recharge"
	GroupRead     = "read"
)

// DefaultRateLimitRules returns the per-caller limits for each endpoint group.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		GroupRequests: {Limit: 30, Window: time.Hour},
		GroupUnlock:   {Limit: 60, Window: time.Minute},
		GroupQuotes:   {Limit: 30, Window: time.Minute},
		GroupRecharge: {Limit: 10, Window: time.Minute},
		GroupRead:     {Limit: 120, Window: time.Minute},
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
// It must run after JWTAuth so callers are keyed by user id.
func RateLimiter(store *redisStore.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := extractIdentifier(c)
		key := fmt.Sprintf("%s:%s", identifier, group)

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier keys authenticated callers by user id, others by IP.
func extractIdentifier(c *gin.Context) string {
	if caller, ok := CallerFrom(c); ok {
		return "user:" + caller.UserID.String()
	}
	return "ip:" + c.ClientIP()
}
