// README: Firebase auth middleware; resolves caller uid, role, and hospital from verified token claims.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Sagnify/ambulance-booking/internal/infra"
)

const (
	RoleRequester = "requester"
	RoleDriver    = "driver"
	RoleHospital  = "hospital"
	RoleAdmin     = "admin"
)

const (
	ctxUIDKey        = "auth.uid"
	ctxRoleKey       = "auth.role"
	ctxHospitalIDKey = "auth.hospital_id"
)

// Auth verifies the bearer token. Tokens without a role claim are requesters.
// Hospital tokens carry the hospital in a hospital_id claim, defaulting to the uid.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil || token == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		role := RoleRequester
		if v, ok := token.Claims["role"].(string); ok && v != "" {
			role = v
		}
		c.Set(ctxUIDKey, token.UID)
		c.Set(ctxRoleKey, role)
		if role == RoleHospital {
			hospitalID := token.UID
			if v, ok := token.Claims["hospital_id"].(string); ok && v != "" {
				hospitalID = v
			}
			c.Set(ctxHospitalIDKey, hospitalID)
		}
		c.Next()
	}
}

// RequireRole rejects callers whose role is not in roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := CallerRole(c)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUIDKey)
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRoleKey)
}

func CallerHospitalID(c *gin.Context) string {
	return c.GetString(ctxHospitalIDKey)
}
