package digestapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dailydigest/internal/httpx"
)

// handleCron runs the hourly digest batch for an external scheduler. Setting
// force=true sends to every recipient regardless of delivery hour.
func (s *Server) handleCron(c *gin.Context) {
	if !s.cronAuthorized(c.GetHeader("Authorization")) {
		httpx.Error(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	ctx := c.Request.Context()
	force := c.Query("force") == "true"

	sum, err := s.Runner.Run(ctx, s.Now().UTC(), force)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to send digests",
			"error", err,
			"sent", sum.Sent,
			"failed", sum.Failed,
			"skipped", sum.Skipped)
		httpx.Error(c, http.StatusInternalServerError, "Failed to send digests")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"sent":    sum.Sent,
		"failed":  sum.Failed,
		"skipped": sum.Skipped,
	})
}

func (s *Server) cronAuthorized(header string) bool {
	if s.CronSecret == "" {
		return false
	}

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(token), []byte(s.CronSecret)) == 1
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.Store.Ping(c.Request.Context()); err != nil {
		s.log.ErrorContext(c.Request.Context(), "Database health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "database": "unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "database": "ok"})
}
