package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// IPWhitelist restricts a route group to the given client IPs. An
// empty list disables the check.
func IPWhitelist(ips []string) gin.HandlerFunc {
	if len(ips) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	allowed := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		allowed[ip] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := allowed[c.ClientIP()]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden,
				gin.H{"error": "access denied"})
			return
		}
		c.Next()
	}
}
