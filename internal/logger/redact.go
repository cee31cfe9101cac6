package logger

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// Redactor scrubs credentials from log messages and fields.
type Redactor struct {
	sensitiveKeys []string
	patterns      []*regexp.Regexp
}

// DefaultRedactor hides passwords, secrets and anything that looks like a
// JWT or bearer credential.
func DefaultRedactor() *Redactor {
	return &Redactor{
		sensitiveKeys: []string{"password", "token", "secret", "authorization", "cookie"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-_.=]+`),
			regexp.MustCompile(`eyJ[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]*`),
		},
	}
}

// IsSensitiveKey reports whether a field or query parameter name carries a credential.
func (r *Redactor) IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range r.sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Redact replaces credential-shaped substrings of s.
func (r *Redactor) Redact(s string) string {
	for _, p := range r.patterns {
		s = p.ReplaceAllString(s, redacted)
	}
	return s
}

// RedactFields returns a copy of fields with sensitive values replaced.
func (r *Redactor) RedactFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch {
		case r.IsSensitiveKey(k):
			out[k] = redacted
		default:
			if s, ok := v.(string); ok {
				out[k] = r.Redact(s)
			} else {
				out[k] = v
			}
		}
	}
	return out
}

// RedactQuery hides sensitive parameters of a raw query string.
func (r *Redactor) RedactQuery(query string) string {
	if query == "" {
		return ""
	}
	parts := strings.Split(query, "&")
	for i, part := range parts {
		key, _, found := strings.Cut(part, "=")
		if found && r.IsSensitiveKey(key) {
			parts[i] = key + "=" + redacted
		}
	}
	return strings.Join(parts, "&")
}
