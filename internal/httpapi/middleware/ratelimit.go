package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parleyhq/parley/internal/common"
	"github.com/parleyhq/parley/internal/store/redisstore"
)

// CompletionRateLimit caps completion calls per authenticated user. Runs
// after AuthRequired. A redis outage fails open; completions keep working
// without the cap.
func CompletionRateLimit(limiter *redisstore.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		uid, ok := UserID(c)
		if !ok {
			common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
			c.Abort()
			return
		}

		allowed, err := limiter.Allow(c.Request.Context(), uid)
		if err != nil {
			log.Printf("rate limit check failed user=%s err=%v", uid, err)
			c.Next()
			return
		}
		if !allowed {
			common.Fail(c, http.StatusTooManyRequests, 42900, "completion rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}
