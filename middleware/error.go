package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"

	"github.com/seo-maskinen/backend/logging"
)

const (
	CodeInternal       = "INTERNAL_ERROR"
	CodeAuthentication = "AUTHENTICATION_ERROR"
	CodeRateLimited    = "RATE_LIMITED"
)

const msgUnexpected = "Ett oväntat fel uppstod. Försök igen senare."

// AbortWithError writes the error envelope every endpoint uses and stops the
// handler chain
func AbortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   message,
		"code":    code,
	})
}

// CaptureError reports err to Sentry tagged with the request id and user
func CaptureError(c *gin.Context, err error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(c.Request)
		scope.SetTag("request_id", GetRequestID(c))
		if user, ok := GetUser(c); ok {
			scope.SetUser(sentry.User{ID: user.ID, Email: user.Email})
		}
		sentry.CaptureException(err)
	})
}

// ErrorHandler recovers from panics, logs the stack and answers 500
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("panic: %v", rec)
				logging.FromContext(c.Request.Context()).Error("panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
				)
				CaptureError(c, err)
				AbortWithError(c, http.StatusInternalServerError, CodeInternal, msgUnexpected)
			}
		}()

		c.Next()
	}
}
