package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"
)

// LimitConcurrentRequests rejects requests with HTTP 429 while maxConcurrent
// others are in flight. Channel operations hold a per-channel gate and call
// the process service, so a burst of them is shed rather than queued.
//
//	api.Use(LimitConcurrentRequests(64))
func LimitConcurrentRequests(maxConcurrent int64) gin.HandlerFunc {
	sem := semaphore.NewWeighted(maxConcurrent)

	return func(c *gin.Context) {
		if !sem.TryAcquire(1) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message": "too many concurrent requests",
			})
			return
		}
		defer sem.Release(1)
		c.Next()
	}
}
