package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/philsgames/questtracker/cache"
	"github.com/philsgames/questtracker/config"
	"github.com/philsgames/questtracker/model"
)

const (
	AccountIDKey = "account_id"
	RoleKey      = "role"
)

// VerifySession parses a raw token and confirms the session is still
// present in the cache. It returns (nil, "reason") when rejected.
// Streaming endpoints that carry the token as a query parameter use
// this directly.
func VerifySession(ctx context.Context, token string, sec config.SecurityConfig, c cache.Cache) (*Claims, string) {
	if token == "" {
		return nil, "missing token"
	}
	claims, err := ParseToken(token, sec.JWTSecret)
	if err != nil {
		return nil, "invalid token"
	}
	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	exists, err := c.Exists(cacheCtx, "session:"+token)
	if err != nil || !exists {
		return nil, "session expired"
	}
	return claims, ""
}

// Auth validates the Bearer JWT token and checks the session cache.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, reason := VerifySession(ctx.Request.Context(),
			strings.TrimPrefix(header, "Bearer "), sec, c)
		if claims == nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": reason})
			return
		}

		ctx.Set(AccountIDKey, claims.AccountID)
		ctx.Set(RoleKey, claims.Role)
		ctx.Next()
	}
}

// RequireGM rejects requests whose session does not carry the author
// role. Mutating quest state is GM-only; players go through the note
// relay instead.
func RequireGM() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if GetRole(ctx) != model.RoleGM {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "gm role required"})
			return
		}
		ctx.Next()
	}
}

// GetAccountID retrieves the authenticated account ID from the Gin context.
func GetAccountID(c *gin.Context) int64 {
	if v, exists := c.Get(AccountIDKey); exists {
		return v.(int64)
	}
	return 0
}

// GetRole retrieves the authenticated session role from the Gin context.
func GetRole(c *gin.Context) string {
	if v, exists := c.Get(RoleKey); exists {
		return v.(string)
	}
	return ""
}
