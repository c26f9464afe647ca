// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file guards operator routes with a static bearer token. The token is
// compared in constant time; the acting agent is taken from X-Agent-Name and
// made available to handlers through AgentName.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderAgentName names the operator performing an admin action.
const HeaderAgentName = "X-Agent-Name"

// DefaultAgentName is used when an admin request omits X-Agent-Name.
const DefaultAgentName = "operator"

// AdminAuth rejects requests whose Authorization header is not
// "Bearer <token>". An empty token disables every guarded route (503) so an
// unconfigured deployment never exposes operator actions.
func AdminAuth(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		if len(want) == 0 {
			abortError(c, http.StatusServiceUnavailable, "admin_disabled", "operator API is not configured")
			return
		}

		got, ok := bearer(c.GetHeader("Authorization"))
		if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			c.Header("WWW-Authenticate", `Bearer realm="admin"`)
			abortError(c, http.StatusUnauthorized, "unauthorized", "missing or invalid admin token")
			return
		}

		agent := strings.TrimSpace(c.GetHeader(HeaderAgentName))
		if agent == "" {
			agent = DefaultAgentName
		}
		c.Set(ctxKeyAgent, agent)
		c.Next()
	}
}

func bearer(h string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
