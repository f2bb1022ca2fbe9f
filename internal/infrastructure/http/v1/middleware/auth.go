package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"comanda/internal/core/apperror"
	appctx "comanda/internal/core/context"
)

// JWTValidator interface for token validation.
type JWTValidator interface {
	ValidateToken(tokenString string) (*appctx.CallerContext, error)
}

// Auth middleware validates JWT tokens and populates the caller context.
func Auth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			abortUnauthorized(c, "missing or malformed authorization header")
			return
		}

		caller, err := validator.ValidateToken(tokenString)
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}

		setCaller(c, caller)
		c.Next()
	}
}

// OptionalAuth validates the token if one is present. A request without a
// token passes unscoped; a request with a bad token is rejected.
func OptionalAuth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		Auth(validator)(c)
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func setCaller(c *gin.Context, caller *appctx.CallerContext) {
	ctx := appctx.WithCaller(c.Request.Context(), caller)
	c.Request = c.Request.WithContext(ctx)
	c.Set("subject", caller.Subject)
	c.Set("company_id", caller.CompanyID)
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
