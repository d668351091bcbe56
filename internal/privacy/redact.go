// Package privacy applies the crawl's privacy policy (spec §6.3 privacy.*)
// at the two points sensitive data would otherwise leak into an archive:
// outgoing request headers and captured form input values. It generalizes
// the teacher's utils.HeaderRedactor, which only masked header values for
// log output, into a policy-driven component the fetcher and extractor set
// both call directly.
package privacy

import (
	"net/http"
	"strings"
)

// sensitiveHeaderKeywords flags a header name as carrying a credential; it
// is consulted only when the strip_auth_headers toggle is on.
var sensitiveHeaderKeywords = []string{
	"authorization",
	"token",
	"key",
	"secret",
	"password",
	"credential",
	"api-key",
}

// Policy mirrors engineconfig.PrivacyConfig, resolved to booleans the
// fetcher and extractor apply without needing the config package.
type Policy struct {
	StripCookies      bool
	StripAuthHeaders  bool
	RedactInputValues bool
	RedactForms       bool
}

// Redactor applies a Policy. It is safe for concurrent use: it holds no
// mutable state.
type Redactor struct {
	policy Policy
}

// New builds a Redactor for policy.
func New(policy Policy) *Redactor {
	return &Redactor{policy: policy}
}

// SanitizeRequestHeaders strips Cookie and Authorization-like headers from
// an outgoing request in place, per the policy's strip_cookies and
// strip_auth_headers flags.
func (r *Redactor) SanitizeRequestHeaders(h http.Header) {
	if r.policy.StripCookies {
		h.Del("Cookie")
		h.Del("Cookie2")
	}
	if r.policy.StripAuthHeaders {
		for name := range h {
			if isSensitiveHeaderName(name) {
				h.Del(name)
			}
		}
	}
}

func isSensitiveHeaderName(name string) bool {
	nameLower := strings.ToLower(name)
	for _, keyword := range sensitiveHeaderKeywords {
		if strings.Contains(nameLower, keyword) {
			return true
		}
	}
	return false
}

// RedactValue masks a captured value (a form input's value, typically)
// according to the redact_input_values / redact_forms policy. It returns
// the value unchanged if neither flag is set.
func (r *Redactor) RedactValue(fieldType, value string) (redacted string, wasRedacted bool) {
	if value == "" {
		return value, false
	}
	if !r.policy.RedactInputValues && !r.policy.RedactForms {
		return value, false
	}
	if fieldType == "hidden" || fieldType == "submit" || fieldType == "button" {
		return value, false
	}
	if len(value) > 8 {
		return value[:2] + "***" + value[len(value)-2:], true
	}
	return "***", true
}
