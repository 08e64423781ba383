package logger

import "strings"

var secretKeys = []string{"token", "secret", "password", "api_key", "apikey", "credential"}

// MaskSecret hides all but the last four characters of a credential.
// "shpat_abcdef123456" -> "***3456"; values of four characters or fewer are
// fully masked.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return "***"
	}
	return "***" + s[len(s)-4:]
}

func maskValue(key, val string) string {
	k := strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(k, s) {
			return MaskSecret(val)
		}
	}
	return val
}
