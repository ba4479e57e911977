package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityConfig holds the hardening headers added to every response.
type SecurityConfig struct {
	// HSTSMaxAge enables Strict-Transport-Security when positive. Only set
	// it when the API is served over TLS.
	HSTSMaxAge            time.Duration
	HSTSIncludeSubdomains bool
	// The Swagger UI page needs inline scripts and styles
	ContentSecurityPolicy string
	PermissionsPolicy     string
}

// DefaultSecurityConfig returns the headers for a JSON API with a docs page.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		HSTSIncludeSubdomains: true,
		ContentSecurityPolicy: "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; " +
			"img-src 'self' data:; frame-ancestors 'none'; base-uri 'none'; form-action 'none'",
		PermissionsPolicy: "camera=(), geolocation=(), microphone=(), payment=(), usb=()",
	}
}

// Secure adds the default security headers.
func Secure() gin.HandlerFunc {
	return SecureWithConfig(DefaultSecurityConfig())
}

// SecureWithConfig adds security headers built from cfg.
func SecureWithConfig(cfg SecurityConfig) gin.HandlerFunc {
	headers := [][2]string{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
		{"Cross-Origin-Opener-Policy", "same-origin"},
	}
	if cfg.ContentSecurityPolicy != "" {
		headers = append(headers, [2]string{"Content-Security-Policy", cfg.ContentSecurityPolicy})
	}
	if cfg.PermissionsPolicy != "" {
		headers = append(headers, [2]string{"Permissions-Policy", cfg.PermissionsPolicy})
	}
	if cfg.HSTSMaxAge > 0 {
		hsts := "max-age=" + strconv.FormatInt(int64(cfg.HSTSMaxAge/time.Second), 10)
		if cfg.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
		headers = append(headers, [2]string{"Strict-Transport-Security", hsts})
	}

	return func(c *gin.Context) {
		for _, h := range headers {
			c.Header(h[0], h[1])
		}
		c.Next()
	}
}
