package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// RedactOptions adds header names (case-insensitive) whose values are
// replaced by "[REDACTED]" on top of credentials and webhook signatures.
type RedactOptions struct {
	MaskHeaders []string
}

// RedactingLogger is Logger with customer PII and channel secrets scrubbed
// from the query, user agent, request headers and customer id. Request and
// response bodies are never logged by either logger.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	return accessLog(newScrubber(opts))
}

// Patterns run in declaration order: secrets, then ids, then emails, then
// phones. UUIDs go before phones so the phone pattern never eats their digit
// groups.
var (
	secretParamRE = regexp.MustCompile(`(?i)\b((?:hub\.verify_token|access_token|token)=)[^&\s]*`)
	uuidRE        = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE       = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE       = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// alwaysMasked are headers that carry credentials or signatures.
var alwaysMasked = []string{
	"authorization",
	"cookie",
	"set-cookie",
	"x-line-signature",
	"x-hub-signature-256",
}

type scrubber struct {
	mask map[string]struct{}
}

func newScrubber(opts RedactOptions) *scrubber {
	s := &scrubber{mask: make(map[string]struct{}, len(alwaysMasked)+len(opts.MaskHeaders))}
	for _, h := range append(alwaysMasked, opts.MaskHeaders...) {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			s.mask[h] = struct{}{}
		}
	}
	return s
}

// clean returns v with secrets and PII replaced. A nil scrubber is the
// identity.
func (s *scrubber) clean(v string) string {
	if s == nil || v == "" {
		return v
	}
	v = secretParamRE.ReplaceAllString(v, "${1}[REDACTED]")
	v = uuidRE.ReplaceAllString(v, "[REDACTED:id]")
	v = emailRE.ReplaceAllString(v, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(v, "[REDACTED:phone]")
}

// headers flattens h, masking sensitive names and cleaning the rest.
func (s *scrubber) headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, masked := s.mask[strings.ToLower(k)]; masked {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = s.clean(strings.Join(vv, ", "))
	}
	return out
}
