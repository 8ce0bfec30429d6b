package auth

import (
	"net/http"
	"strings"

	apperrors "careerkit-credits/internal/common/errors"
	"careerkit-credits/internal/common/logger"

	"github.com/gin-gonic/gin"
)

// DevSubject is the user every request acts as when auth is disabled.
const DevSubject = "local-dev"

type MiddlewareConfig struct {
	Disabled bool
	// DevEmail is attached to the dev claims when auth is disabled.
	DevEmail string
}

// Middleware enforces bearer token auth and stores the claims in the
// request context. Failures answer 401 {"error", "code"}.
func Middleware(verifier TokenVerifier, cfg MiddlewareConfig, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Disabled {
			claims := &Claims{
				Subject: DevSubject,
				Email:   cfg.DevEmail,
				Issuer:  "local",
				Raw:     map[string]any{"sub": DevSubject},
			}
			c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
			c.Next()
			return
		}

		if verifier == nil {
			respondUnauthorized(c, "auth verifier not configured")
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Debug("auth failure: missing Authorization header", map[string]interface{}{"path": c.Request.URL.Path})
			respondUnauthorized(c, "Unauthorized")
			return
		}

		token, ok := extractBearerToken(authHeader)
		if !ok {
			log.Debug("auth failure: malformed Authorization header", map[string]interface{}{"path": c.Request.URL.Path})
			respondUnauthorized(c, "Unauthorized")
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			log.Warn("auth failure: token invalid", map[string]interface{}{
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			})
			respondUnauthorized(c, "Unauthorized")
			return
		}

		c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message, "code": apperrors.ErrCodeUnauthenticated})
}
