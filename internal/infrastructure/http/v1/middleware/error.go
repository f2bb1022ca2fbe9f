package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"comanda/internal/core/apperror"
	"comanda/pkg/logger"
)

// ErrorHandler middleware transforms errors into consistent JSON responses:
//
//	{"error": "<message>", "code": "<CODE>", "message": "<message>", "details": {...}}
//
// Internal causes are logged, never returned.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}

			message := appErr.Message
			if appErr.Code == apperror.CodeInternal {
				message = "Internal server error"
			}
			c.JSON(appErr.HTTPStatus, errorBody(appErr.Code, message, appErr.Details))
			return
		}

		logger.Error(c.Request.Context(), "unhandled error", "error", err)

		c.JSON(http.StatusInternalServerError, errorBody(apperror.CodeInternal, "Internal server error",
			map[string]any{"request_id": c.GetString("request_id")}))
	}
}

func errorBody(code, message string, details map[string]any) gin.H {
	body := gin.H{
		"error":   message,
		"code":    code,
		"message": message,
	}
	if len(details) > 0 {
		body["details"] = details
	}
	return body
}
