package middleware

import (
	"net/http"

	"github.com/psd401/aistudio-document-service/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorMiddleware maps errors attached to the gin context onto the response
// envelope. AppErrors keep their status and code; anything else collapses to a
// generic 500 with the detail going to the logs only.
func ErrorMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last()

		if appErr, ok := errors.AsAppError(err.Err); ok {
			if appErr.Status >= http.StatusInternalServerError {
				logger.Error("request failed",
					zap.String("path", c.Request.URL.Path),
					zap.String("code", appErr.Code),
					zap.Error(appErr))
			}
			c.JSON(appErr.Status, errors.ErrorResponse{
				Error:   appErr.Code,
				Message: appErr.Message,
			})
			return
		}

		logger.Error("unhandled error",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err.Err))
		c.JSON(http.StatusInternalServerError, errors.ErrorResponse{
			Error:   errors.ErrInternalServer.Code,
			Message: "Internal server error",
		})
	}
}
