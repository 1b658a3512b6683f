package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UnauthorizedBody is the only thing a rejected client is told.
const UnauthorizedBody = "Unauthorized token."

// Authorizer validates a bearer token.
type Authorizer interface {
	Authorize(token string) error
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// RequireBearer aborts the request with 401 unless it carries a valid bearer token.
func RequireBearer(gate Authorizer, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		token, errMsg := extractBearerToken(c.GetHeader("Authorization"))
		if errMsg != "" {
			logger.Info("rejected request", zap.String("path", c.Request.URL.Path), zap.String("reason", errMsg))
			c.String(http.StatusUnauthorized, UnauthorizedBody)
			c.Abort()
			return
		}

		if err := gate.Authorize(token); err != nil {
			if errors.Is(err, ErrPasskeyUnavailable) {
				logger.Error("cannot verify token", zap.Error(err))
			} else {
				logger.Info("rejected request", zap.String("path", c.Request.URL.Path), zap.String("reason", "token mismatch"))
			}
			c.String(http.StatusUnauthorized, UnauthorizedBody)
			c.Abort()
			return
		}
		c.Next()
	}
}
