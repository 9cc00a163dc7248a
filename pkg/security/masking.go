package security

import (
	"regexp"
	"strings"
)

const redacted = "***REDACTED***"

var (
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	jwtPattern    = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`)
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret|token|password)(["\s:=]+["']?)([a-zA-Z0-9_-]{16,})`)
	walletPattern = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)

	// Field names whose values are never logged
	sensitiveFields = []string{
		"password", "secret", "token", "api_key", "apikey", "private_key",
		"signature", "authorization", "credential", "seed", "mnemonic",
	}

	// Header names whose values are never logged. Provider webhook
	// signature headers are covered by "signature".
	sensitiveHeaders = []string{"authorization", "x-api-key", "cookie", "signature", "x-access-token"}

	// Fields shown partially so support can still correlate them
	partialFields = []string{"wallet_address", "walletaddress", "deposit_address", "payin_address", "address", "email"}
)

// MaskString masks sensitive patterns in a string
func MaskString(s string) string {
	s = emailPattern.ReplaceAllStringFunc(s, maskEmail)
	s = jwtPattern.ReplaceAllString(s, "eyJ"+redacted)
	s = apiKeyPattern.ReplaceAllString(s, "${1}${2}"+redacted)
	s = walletPattern.ReplaceAllStringFunc(s, MaskAddress)
	return s
}

// MaskMap masks sensitive fields in a map, recursing into nested values
func MaskMap(data map[string]interface{}) map[string]interface{} {
	masked := make(map[string]interface{}, len(data))
	for k, v := range data {
		switch {
		case matchesAny(k, sensitiveFields):
			masked[k] = redacted
			continue
		case matchesAny(k, partialFields):
			if s, ok := v.(string); ok {
				if strings.Contains(s, "@") {
					masked[k] = maskEmail(s)
				} else {
					masked[k] = MaskAddress(s)
				}
				continue
			}
		}
		masked[k] = SanitizeForLog(v)
	}
	return masked
}

// SanitizeForLog prepares data for safe logging
func SanitizeForLog(data interface{}) interface{} {
	switch v := data.(type) {
	case string:
		return MaskString(v)
	case map[string]interface{}:
		return MaskMap(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = SanitizeForLog(item)
		}
		return out
	default:
		return data
	}
}

// RedactHeaders flattens headers for logging with secrets removed
func RedactHeaders(headers map[string][]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if matchesAny(k, sensitiveHeaders) {
			out[k] = redacted
			continue
		}
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// MaskAddress keeps the first 6 and last 4 characters of a wallet address
func MaskAddress(addr string) string {
	if len(addr) < 12 {
		return strings.Repeat("*", len(addr))
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// MaskAPIKey masks an API key showing only first 4 chars
func MaskAPIKey(key string) string {
	if len(key) < 4 {
		return "****"
	}
	return key[:4] + strings.Repeat("*", len(key)-4)
}

func maskEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***.***"
	}
	local, domain := parts[0], parts[1]

	domainParts := strings.Split(domain, ".")
	if len(domainParts) > 1 {
		return maskPartial(local, 2) + "@" + maskPartial(domainParts[0], 1) + "." + domainParts[len(domainParts)-1]
	}
	return maskPartial(local, 2) + "@" + maskPartial(domain, 2)
}

func maskPartial(s string, showChars int) string {
	if len(s) <= showChars {
		return strings.Repeat("*", len(s))
	}
	return s[:showChars] + strings.Repeat("*", len(s)-showChars)
}

func matchesAny(field string, names []string) bool {
	lower := strings.ToLower(field)
	for _, name := range names {
		if strings.Contains(lower, name) {
			return true
		}
	}
	return false
}
