package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	authorizationHeader = "Authorization"
	bearerType          = "Bearer"

	// DepartmentKey is the gin context key under which the authenticated
	// department id is stored.
	DepartmentKey = "department"
)

// Middleware returns a gin handler that rejects requests without a valid
// bearer token and injects the department into the request context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(authorizationHeader)
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "missing authorization header"})
			return
		}

		fields := strings.Fields(header)
		if len(fields) < 2 || !strings.EqualFold(fields[0], bearerType) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "invalid authorization header"})
			return
		}

		dept, err := s.ValidateToken(fields[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "session expired"})
			return
		}

		c.Set(DepartmentKey, dept)
		c.Next()
	}
}

// DepartmentFrom returns the authenticated department of the request.
func DepartmentFrom(c *gin.Context) string {
	return c.GetString(DepartmentKey)
}
