package api

import (
	"net/http"

	apperrors "careerkit-credits/internal/common/errors"

	"github.com/gin-gonic/gin"
)

func respondUnauthorized(c *gin.Context) {
	err := apperrors.NewUnauthenticatedError("missing or invalid bearer token")
	c.AbortWithStatusJSON(apperrors.HTTPStatus(err.Code), gin.H{"error": "Unauthorized", "code": err.Code})
}

func respondBadRequest(c *gin.Context, message string, details ...string) {
	body := gin.H{"error": message, "code": apperrors.ErrCodeInvalidRequest}
	if len(details) > 0 {
		body["details"] = details
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, body)
}

// respondError writes err with the status its code maps to. Metadata keys
// are flattened into the body so 402 responses carry remainingCredits and
// requiredCredits at the top level.
func (s *Server) respondError(c *gin.Context, err error) {
	stdErr := apperrors.Normalize(err)
	status := apperrors.HTTPStatus(stdErr.Code)

	body := gin.H{"error": stdErr.Message, "code": stdErr.Code}
	for k, v := range stdErr.Metadata {
		body[k] = v
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", map[string]interface{}{
			"path":    c.Request.URL.Path,
			"code":    string(stdErr.Code),
			"details": stdErr.Details,
		})
	} else {
		body["details"] = stdErr.Details
	}
	c.AbortWithStatusJSON(status, body)
}
