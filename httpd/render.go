package httpd

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/xrey167/molthub/registry"
)

func statusFor(code registry.Code) int {
	switch code {
	case registry.CodeInvalid:
		return http.StatusBadRequest
	case registry.CodeUnauthorized:
		return http.StatusUnauthorized
	case registry.CodeForbidden:
		return http.StatusForbidden
	case registry.CodeNotFound:
		return http.StatusNotFound
	case registry.CodeGone:
		return http.StatusGone
	case registry.CodeConflict:
		return http.StatusConflict
	case registry.CodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case registry.CodeUnsupported:
		return http.StatusUnsupportedMediaType
	case registry.CodeRateLimited:
		return http.StatusTooManyRequests
	case registry.CodeEmbeddingUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// renderError maps a service error onto the HTTP boundary. Internal
// errors are logged with their cause but surfaced opaquely.
func renderError(c *gin.Context, err error) {
	var svcErr *registry.ServiceError
	if !errors.As(err, &svcErr) {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("unclassified handler error")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "InternalError", "message": "internal server error"},
		})

		return
	}

	status := statusFor(svcErr.Code)
	if status >= http.StatusInternalServerError {
		log.Error().Err(svcErr).Str("path", c.FullPath()).Msg("handler error")
	}

	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    svcErr.Code.String(),
			"message": svcErr.Message,
		},
	})
}
