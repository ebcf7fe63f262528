package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/EnkiSilicium/artisan-hub/internal/handler"
	"github.com/EnkiSilicium/artisan-hub/pkg/apperror"
)

// ErrorHandler converts classified errors collected on the gin context to
// HTTP responses: domain errors become their 4xx with a stable code, infra
// errors become 5xx (with a retry hint when retryable), programmer errors
// become 500 and are logged loudly since they indicate deployed-code bugs.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		err := c.Errors.Last().Err

		ae, classified := apperror.As(err)
		if !classified {
			log.Error().
				Err(err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Msg("unclassified request error")
			c.JSON(http.StatusInternalServerError,
				handler.NewErrorResponse("internal server error"))
			return
		}

		evt := log.Error()
		if ae.Kind == apperror.KindDomain {
			evt = log.Warn()
		}
		evt.
			Err(err).
			Str("request_id", requestID).
			Str("kind", ae.Kind.String()).
			Str("code", ae.Code).
			Bool("retryable", ae.Retryable).
			Str("path", c.Request.URL.Path).
			Str("method", c.Request.Method).
			Msg("request failed")

		if ae.Kind == apperror.KindProgrammer {
			// Contract violation in deployed code: never leak details.
			c.JSON(http.StatusInternalServerError,
				handler.NewCodedErrorResponse(ae.Code, "internal contract violation"))
			return
		}

		if ae.Retryable {
			c.Header("Retry-After", "1")
		}
		c.JSON(ae.HTTPStatus, handler.NewCodedErrorResponse(ae.Code, ae.Message))
	}
}
