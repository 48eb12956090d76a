package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthMiddleware validates the Bearer JWT and sets tenant_id/user_id/role
// in the gin context. Adapted from order-service's AuthMiddleware for
// this platform's tenant-scoped claims (every resource here is scoped
// by tenant, not by org membership).
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, errorResponse{Detail: "authorization header required", Code: "unauthorized"})
			c.Abort()
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, errorResponse{Detail: "authorization header must be 'Bearer <token>'", Code: "unauthorized"})
			c.Abort()
			return
		}

		token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, errorResponse{Detail: "invalid or expired token", Code: "unauthorized"})
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, errorResponse{Detail: "invalid token claims", Code: "unauthorized"})
			c.Abort()
			return
		}
		tenantID, _ := claims["tenant_id"].(string)
		if tenantID == "" {
			c.JSON(http.StatusUnauthorized, errorResponse{Detail: "token missing tenant_id claim", Code: "unauthorized"})
			c.Abort()
			return
		}
		c.Set("tenant_id", tenantID)
		if uid, ok := claims["user_id"].(string); ok {
			c.Set("user_id", uid)
		}
		if role, ok := claims["role"].(string); ok {
			c.Set("role", role)
		}
		c.Next()
	}
}

// AdminMiddleware gates admin-only endpoints (§6's /audit group), same
// role-check shape as order-service's AdminMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get("role")
		if r, ok := role.(string); !ok || r != "admin" {
			c.JSON(http.StatusForbidden, errorResponse{Detail: "admin role required", Code: "forbidden"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func tenantID(c *gin.Context) string {
	v, _ := c.Get("tenant_id")
	s, _ := v.(string)
	return s
}

func actor(c *gin.Context) string {
	v, _ := c.Get("user_id")
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return "system"
}
