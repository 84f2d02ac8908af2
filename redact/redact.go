// Package redact masks sensitive values in log messages and attributes.
package redact

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maskChar = "🔒"

// SensitiveKeys holds keys considered sensitive for masking.
var SensitiveKeys = map[string]struct{}{
	"password": {}, "pwd": {}, "pass": {}, "passwd": {},
	"token": {}, "jwt": {}, "auth_token": {}, "access_token": {}, "refresh_token": {},
	"key": {}, "api_key": {}, "apikey": {}, "secret": {}, "client_secret": {}, "private_key": {},
	"credential": {}, "bearer": {}, "authorization": {},
}

// MaskString replaces every rune of s with the mask glyph.
func MaskString(s string) string {
	return strings.Repeat(maskChar, utf8.RuneCountInString(s))
}

// IsSensitiveKey reports whether key names a secret, either exactly or as a
// suffix such as "db_password".
func IsSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	if _, ok := SensitiveKeys[key]; ok {
		return true
	}
	for k := range SensitiveKeys {
		if strings.HasSuffix(key, "_"+k) || strings.HasSuffix(key, "-"+k) {
			return true
		}
	}
	return false
}

// keyValuePattern matches key=value and key: value pairs, with optional quotes
// around the value.
var keyValuePattern = regexp.MustCompile(`(?i)([A-Za-z0-9_-]+)(\s*[:=]\s*)("[^"]*"|'[^']*'|[^\s,;]+)`)

// Message masks the values of sensitive key=value pairs in msg.
func Message(msg string) string {
	if !strings.ContainsAny(msg, "=:") {
		return msg
	}
	return keyValuePattern.ReplaceAllStringFunc(msg, func(m string) string {
		parts := keyValuePattern.FindStringSubmatch(m)
		if len(parts) != 4 || !IsSensitiveKey(parts[1]) {
			return m
		}
		value := parts[3]
		if n := len(value); n >= 2 && (value[0] == '"' || value[0] == '\'') && value[n-1] == value[0] {
			return parts[1] + parts[2] + value[:1] + MaskString(value[1:n-1]) + value[n-1:]
		}
		return parts[1] + parts[2] + MaskString(value)
	})
}

// Value masks v when key is sensitive and v is a string. Maps of strings are
// masked key by key.
func Value(key string, v any) any {
	switch val := v.(type) {
	case string:
		if IsSensitiveKey(key) {
			return MaskString(val)
		}
		return val
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, vv := range val {
			out[k] = Value(k, vv).(string)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = Value(k, vv)
		}
		return out
	default:
		return v
	}
}
