package middleware

import (
	"net/http"
	"strings"

	"github.com/psd401/aistudio-document-service/internal/auth"
	"github.com/psd401/aistudio-document-service/pkg/errors"

	"github.com/gin-gonic/gin"
)

type AuthMiddleware struct {
	resolver auth.SessionResolver
}

func NewAuthMiddleware(resolver auth.SessionResolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, errors.ErrorResponse{
				Error:   errors.ErrUnauthorized.Code,
				Message: "Authorization header is required",
			})
			c.Abort()
			return
		}

		tokenString, err := auth.ExtractTokenFromHeader(authHeader)
		if err != nil {
			c.JSON(http.StatusUnauthorized, errors.ErrorResponse{
				Error:   errors.ErrUnauthorized.Code,
				Message: err.Error(),
			})
			c.Abort()
			return
		}

		session, err := m.resolver.Resolve(c.Request.Context(), tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, errors.ErrorResponse{
				Error:   errors.ErrUnauthorized.Code,
				Message: "Invalid or expired token",
			})
			c.Abort()
			return
		}

		setSession(c, session)
		c.Next()
	}
}

// RequireAuthForSocket also accepts tokens from the "token" query parameter
// or the access_token cookie, for browser WebSocket connections that cannot
// send an Authorization header.
func (m *AuthMiddleware) RequireAuthForSocket() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, tokenString := range candidateTokens(c) {
			session, err := m.resolver.Resolve(c.Request.Context(), tokenString)
			if err == nil {
				setSession(c, session)
				c.Next()
				return
			}
		}

		c.JSON(http.StatusUnauthorized, errors.ErrorResponse{
			Error:   errors.ErrUnauthorized.Code,
			Message: "Authorization required. Provide token via Authorization header, 'token' query parameter, or 'access_token' cookie.",
		})
		c.Abort()
	}
}

func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		isAdmin, exists := c.Get("is_admin")
		if !exists || !isAdmin.(bool) {
			c.JSON(http.StatusForbidden, errors.ErrorResponse{
				Error:   errors.ErrForbidden.Code,
				Message: "Admin access required",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func setSession(c *gin.Context, session *auth.Session) {
	c.Set("user_id", session.UserID)
	c.Set("email", session.Email)
	c.Set("is_admin", session.IsAdmin)
}

func candidateTokens(c *gin.Context) []string {
	var tokens []string

	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		if tokenString, err := auth.ExtractTokenFromHeader(authHeader); err == nil {
			tokens = append(tokens, tokenString)
		}
	}

	if q := c.Query("token"); q != "" {
		tokens = append(tokens, strings.TrimSpace(strings.TrimPrefix(q, "Bearer ")))
	}

	if cookie, err := c.Cookie("access_token"); err == nil && cookie != "" {
		tokens = append(tokens, strings.TrimSpace(strings.TrimPrefix(cookie, "Bearer ")))
	}

	return tokens
}
