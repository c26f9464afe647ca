package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func securityRecorder(t *testing.T, opt SecurityOptions, prep func(*http.Request), pre ...gin.HandlerFunc) http.Header {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(pre...)
	r.Use(SecurityHeaders(opt))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if prep != nil {
		prep(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	h := securityRecorder(t, SecurityOptions{}, nil)

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	}
	for k, v := range want {
		if got := h.Get(k); got != v {
			t.Fatalf("%s = %q; want %q", k, got, v)
		}
	}
	for _, k := range []string{"Cache-Control", "Permissions-Policy", "Content-Security-Policy", "Strict-Transport-Security", "Access-Control-Expose-Headers"} {
		if h.Get(k) != "" {
			t.Fatalf("%s should be unset, got %q", k, h.Get(k))
		}
	}
}

func TestSecurityHeaders_Optional(t *testing.T) {
	h := securityRecorder(t, SecurityOptions{NoStore: true, EnablePolicy: true, CSP: APIContentSecurityPolicy}, nil)

	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("no-store headers: %v", h)
	}
	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("policy headers: %v", h)
	}
	if h.Get("Content-Security-Policy") != APIContentSecurityPolicy {
		t.Fatalf("csp = %q", h.Get("Content-Security-Policy"))
	}
}

func TestSecurityHeaders_HSTSOnlyOverHTTPS(t *testing.T) {
	opt := SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour}

	if h := securityRecorder(t, opt, nil); h.Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS on plain HTTP")
	}

	h := securityRecorder(t, opt, func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "HTTPS") })
	if got := h.Get("Strict-Transport-Security"); got != "max-age=3600; includeSubDomains; preload" {
		t.Fatalf("forwarded https: %q", got)
	}

	opt.HSTSMaxAge = 0
	h = securityRecorder(t, opt, func(r *http.Request) { r.TLS = &tls.ConnectionState{} })
	if got := h.Get("Strict-Transport-Security"); got != "max-age=15552000; includeSubDomains; preload" {
		t.Fatalf("default max age: %q", got)
	}
}

func TestSecurityHeaders_ExposesRequestIDOnce(t *testing.T) {
	presetExpose := func(c *gin.Context) {
		c.Header("Access-Control-Expose-Headers", "ETag, x-request-id")
		c.Next()
	}
	h := securityRecorder(t, SecurityOptions{}, nil, RequestID(), presetExpose)
	if got := h.Get("Access-Control-Expose-Headers"); got != "ETag, x-request-id" {
		t.Fatalf("duplicated expose entry: %q", got)
	}

	h = securityRecorder(t, SecurityOptions{}, nil, RequestID())
	if got := h.Get("Access-Control-Expose-Headers"); got != requestIDHeader {
		t.Fatalf("expose = %q", got)
	}
}

func TestExposeHeader_Appends(t *testing.T) {
	h := http.Header{}
	h.Set("Access-Control-Expose-Headers", "ETag")
	exposeHeader(h, requestIDHeader)
	exposeHeader(h, requestIDHeader)
	if got := h.Get("Access-Control-Expose-Headers"); got != "ETag, X-Request-ID" {
		t.Fatalf("got %q", got)
	}
}
