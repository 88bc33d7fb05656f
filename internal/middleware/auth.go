package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PatricioTamez/orchestrator2.0/internal/errors"
	"github.com/PatricioTamez/orchestrator2.0/internal/identity"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
	userEmailKey        = "userEmail"
)

// AuthMiddleware creates session token authentication middleware
func AuthMiddleware(provider *identity.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(authorizationHeader)
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, errors.ErrorResponse{Error: "authorization header required"})
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.JSON(http.StatusUnauthorized, errors.ErrorResponse{Error: "invalid authorization format"})
			c.Abort()
			return
		}

		token := strings.TrimPrefix(authHeader, bearerPrefix)
		email, err := provider.ValidateToken(token)
		if err != nil {
			status := http.StatusUnauthorized
			message := "invalid token"

			if err == errors.ErrTokenExpired {
				message = "token expired"
			}

			c.JSON(status, errors.ErrorResponse{Error: message})
			c.Abort()
			return
		}

		c.Set(userEmailKey, email)
		c.Next()
	}
}

// GetUserEmail extracts user email from context
func GetUserEmail(c *gin.Context) string {
	if email, exists := c.Get(userEmailKey); exists {
		return email.(string)
	}
	return ""
}

// CORS serves cross-origin headers for the configured origin. Sessions
// are bearer tokens in the Authorization header, so no credentialed
// (cookie) requests cross origins and Allow-Credentials stays unset.
func CORS(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if origin != "*" {
			c.Writer.Header().Set("Vary", "Origin")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
