package logger

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

const invalidEmail = "[invalid-email]"

// SanitizedEmail masks an email address for logging ("user@example.com" becomes
// "u***@*******.com"). Masking counts runes, so the result stays valid UTF-8.
func SanitizedEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return invalidEmail
	}

	if first, size := utf8.DecodeRuneInString(local); size > 0 {
		local = string(first) + mask(local[size:])
	}

	labels := strings.Split(domain, ".")
	for i := 0; i < len(labels)-1; i++ {
		labels[i] = mask(labels[i])
	}

	return local + "@" + strings.Join(labels, ".")
}

func mask(s string) string {
	return strings.Repeat("*", utf8.RuneCountInString(s))
}

// SanitizedKey masks the value of an "email:<value>" attempt key and leaves ip keys as they are
func SanitizedKey(key string) string {
	const prefix = "email:"
	if rest, ok := strings.CutPrefix(key, prefix); ok {
		return prefix + SanitizedEmail(rest)
	}
	return key
}

// SanitizedPath masks path segments that carry an email address, such as
// /v1/blocks/email/{email}.
func SanitizedPath(path string) string {
	if !strings.Contains(path, "@") {
		return path
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if strings.Contains(seg, "@") {
			segments[i] = SanitizedEmail(seg)
		}
	}
	return strings.Join(segments, "/")
}

var sensitiveParams = map[string]struct{}{
	"email":    {},
	"password": {},
	"token":    {},
	"secret":   {},
	"api_key":  {},
	"apikey":   {},
	"auth":     {},
}

// SanitizeQueryString reports whether the query carries a sensitive parameter
// and must be redacted as a whole. Unparsable queries are redacted too.
func SanitizeQueryString(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return true
	}
	for name := range values {
		name = strings.ToLower(name)
		if _, ok := sensitiveParams[name]; ok {
			return true
		}
		if strings.Contains(name, "token") || strings.Contains(name, "password") {
			return true
		}
	}
	return false
}
