package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsAllowMethods  = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders  = "Authorization, Content-Type, X-Request-Id"
	corsExposeHeaders = "X-Request-Id"
	corsMaxAge        = 600
)

// originPolicy matches request origins against the cors_allowlist. Entries
// are exact origins or "*.example.com" style suffix patterns; an empty list
// allows every origin.
type originPolicy struct {
	exact    map[string]struct{}
	suffixes []string
}

func newOriginPolicy(allowlist []string) *originPolicy {
	p := &originPolicy{exact: make(map[string]struct{}, len(allowlist))}
	for _, origin := range allowlist {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		if idx := strings.Index(origin, "*."); idx >= 0 {
			// keep the scheme so http and https stay distinct
			p.suffixes = append(p.suffixes, origin[:idx]+"|"+origin[idx+1:])
			continue
		}
		p.exact[origin] = struct{}{}
	}
	return p
}

func (p *originPolicy) open() bool {
	return len(p.exact) == 0 && len(p.suffixes) == 0
}

func (p *originPolicy) allows(origin string) bool {
	if _, ok := p.exact[origin]; ok {
		return true
	}
	for _, pattern := range p.suffixes {
		scheme, suffix, _ := strings.Cut(pattern, "|")
		if !strings.HasPrefix(origin, scheme) {
			continue
		}
		host := strings.TrimPrefix(origin, scheme)
		if len(host) > len(suffix) && strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

func CORS(allowlist []string) gin.HandlerFunc {
	policy := newOriginPolicy(allowlist)
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		header := c.Writer.Header()
		allowed := true
		switch {
		case policy.open():
			header.Set("Access-Control-Allow-Origin", "*")
		case origin == "":
		case policy.allows(origin):
			header.Set("Access-Control-Allow-Origin", origin)
			header.Add("Vary", "Origin")
		default:
			allowed = false
		}
		if allowed && (origin != "" || policy.open()) {
			header.Set("Access-Control-Allow-Methods", corsAllowMethods)
			header.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			header.Set("Access-Control-Expose-Headers", corsExposeHeaders)
		}
		if c.Request.Method == http.MethodOptions {
			if !allowed {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			header.Set("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
