// internal/middleware/auth_middleware.go
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"vaspay-service/internal/pkg/jwt"
	"vaspay-service/internal/pkg/response"
	"vaspay-service/internal/pkg/session"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware verifies access tokens issued by the auth service and
// checks the session is still live in Redis.
type AuthMiddleware struct {
	verifier *jwt.Verifier
	sessions *session.Manager
}

func NewAuthMiddleware(verifier *jwt.Verifier, sessions *session.Manager) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		sessions: sessions,
	}
}

// Auth is the base authentication middleware that validates JWT tokens
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "missing authorization token", nil)
			return
		}

		claims, err := m.verifier.VerifyAccessToken(token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid or expired token", err)
			return
		}

		blacklisted, err := m.sessions.IsTokenBlacklisted(c.Request.Context(), claims.ID)
		if err == nil && blacklisted {
			response.Error(c, http.StatusUnauthorized, "token has been revoked", nil)
			return
		}

		if _, err := m.sessions.GetSession(c.Request.Context(), claims.IdentityID, claims.ID); err != nil {
			response.Error(c, http.StatusUnauthorized, "session expired", err)
			return
		}

		// Set user context
		c.Set("identity_id", claims.IdentityID)
		c.Set("jti", claims.ID)
		c.Set("roles", claims.Roles)
		c.Set("device", claims.Device)

		c.Next()
	}
}

// RequireRole middleware that requires user to have at least one of the specified roles
// MUST be used after Auth() middleware
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRoles, exists := c.Get("roles")
		if !exists {
			response.Error(c, http.StatusForbidden, "no roles found - authentication required", nil)
			return
		}

		userRolesList, ok := userRoles.([]string)
		if !ok {
			response.Error(c, http.StatusInternalServerError, "invalid roles format", nil)
			return
		}

		hasRole := false
		for _, userRole := range userRolesList {
			for _, requiredRole := range roles {
				if userRole == requiredRole {
					hasRole = true
					break
				}
			}
			if hasRole {
				break
			}
		}

		if !hasRole {
			err := errors.New("user does not have required role")
			response.Error(c, http.StatusForbidden, "insufficient permissions", err, map[string]interface{}{
				"required_roles": roles,
			})
			return
		}

		c.Next()
	}
}

// AdminOnly returns middlewares for admin-only routes (Auth + RequireRole)
func (m *AuthMiddleware) AdminOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.Auth(),
		m.RequireRole("admin", "super_admin"),
	}
}

// extractToken extracts Bearer token from Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	// Fallback to query param (websocket handshakes)
	token := c.Query("token")
	if token != "" {
		return token
	}

	return ""
}

// Helper function to get identity ID from context
func GetIdentityID(c *gin.Context) (int64, bool) {
	identityID, exists := c.Get("identity_id")
	if !exists {
		return 0, false
	}

	id, ok := identityID.(int64)
	return id, ok
}

// Helper function to get JTI from context
func GetJTI(c *gin.Context) (string, bool) {
	jti, exists := c.Get("jti")
	if !exists {
		return "", false
	}

	jtiStr, ok := jti.(string)
	return jtiStr, ok
}

// Helper function to check if user has role
func HasRole(c *gin.Context, role string) bool {
	roles, exists := c.Get("roles")
	if !exists {
		return false
	}

	rolesList, ok := roles.([]string)
	if !ok {
		return false
	}

	for _, r := range rolesList {
		if r == role {
			return true
		}
	}

	return false
}
