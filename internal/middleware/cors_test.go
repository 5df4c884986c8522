package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func corsEngine(allowlist []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(CORS(allowlist))
	engine.GET("/documents", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return engine
}

func TestCORSOpenWhenAllowlistEmpty(t *testing.T) {
	engine := corsEngine(nil)
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Origin", "https://anywhere.test")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "X-Request-Id", rec.Header().Get("Access-Control-Expose-Headers"))
}

func TestCORSAllowlist(t *testing.T) {
	engine := corsEngine([]string{"https://app.catai.test/", " https://*.partner.test "})
	tests := []struct {
		name    string
		method  string
		origin  string
		code    int
		allowed bool
	}{
		{"exact origin", http.MethodGet, "https://app.catai.test", http.StatusOK, true},
		{"wildcard subdomain", http.MethodGet, "https://eu.partner.test", http.StatusOK, true},
		{"bare wildcard domain", http.MethodGet, "https://partner.test", http.StatusOK, false},
		{"wrong scheme", http.MethodGet, "http://eu.partner.test", http.StatusOK, false},
		{"unknown origin", http.MethodGet, "https://evil.test", http.StatusOK, false},
		{"preflight allowed", http.MethodOptions, "https://app.catai.test", http.StatusNoContent, true},
		{"preflight rejected", http.MethodOptions, "https://evil.test", http.StatusForbidden, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/documents", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)
			require.Equal(t, tt.code, rec.Code)
			if tt.allowed {
				require.Equal(t, tt.origin, rec.Header().Get("Access-Control-Allow-Origin"))
				require.Equal(t, "Origin", rec.Header().Get("Vary"))
				return
			}
			require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORSPreflightCarriesMaxAge(t *testing.T) {
	engine := corsEngine([]string{"https://app.catai.test"})
	req := httptest.NewRequest(http.MethodOptions, "/documents", nil)
	req.Header.Set("Origin", "https://app.catai.test")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}
