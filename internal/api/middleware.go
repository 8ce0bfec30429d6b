package api

import (
	"time"

	"careerkit-credits/internal/common/auth"
	"careerkit-credits/internal/common/logger"
	"careerkit-credits/internal/common/observability"

	"github.com/gin-gonic/gin"
)

const identifierKey = "userIdentifier"

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request", map[string]interface{}{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"latencyMs": time.Since(start).Milliseconds(),
		})
	}
}

func requestMetrics(obs *observability.Observability) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		obs.RecordRequest(c.Request.Context(), c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// resolveUser upserts the authenticated user and stores the identifier the
// credit components should use: the internal id when the upsert worked,
// the external subject otherwise.
func (s *Server) resolveUser(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		respondUnauthorized(c)
		return
	}

	identifier := claims.Subject
	if s.deps.Users != nil {
		u, err := s.deps.Users.UpsertUser(c.Request.Context(), claims.Subject, claims.Email)
		if err != nil {
			s.logger.Warn("user upsert failed, using external id", map[string]interface{}{
				"authUserId": claims.Subject,
				"error":      err.Error(),
			})
		} else {
			identifier = u.ID
		}
	}

	c.Set(identifierKey, identifier)
	c.Next()
}

func identifier(c *gin.Context) string {
	return c.GetString(identifierKey)
}
