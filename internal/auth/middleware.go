package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shopchat/internal/logging"
)

const (
	ctxUserID    = "shopchat.auth.user_id"
	ctxAuthToken = "shopchat.auth.token"
)

// Middleware resolves the caller from a bearer header or the auth cookie.
// Unknown, revoked and expired tokens get 401; lookup failures get 500.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := s.requestToken(c)
		userID, err := s.ValidateToken(c.Request.Context(), token)
		switch {
		case err == nil:
			c.Set(ctxUserID, userID)
			c.Set(ctxAuthToken, token)
			c.Next()
		case errors.Is(err, ErrTokenRequired):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		default:
			logging.FromContext(c).WithError(err).Error("validate auth token")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "could not verify token"})
		}
	}
}

// UserIDFromContext returns the user Middleware authenticated.
func UserIDFromContext(c *gin.Context) (int64, bool) {
	userID, ok := c.Value(ctxUserID).(int64)
	return userID, ok
}

// AuthTokenFromContext returns the token the request authenticated with.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	token, ok := c.Value(ctxAuthToken).(string)
	return token, ok
}

// requestToken prefers the Authorization header over the cookie.
func (s *Service) requestToken(c *gin.Context) string {
	if token, ok := s.bearerToken(c); ok {
		return token
	}
	token, _ := c.Cookie(s.cookieName)
	return token
}

func (s *Service) bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader(s.headerName)
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
