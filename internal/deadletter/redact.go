package deadletter

import "strings"

const RedactedValue = "[REDACTED]"

// maxRedactDepth bounds the recursive walk so pathological payloads cannot
// blow the stack; anything deeper is replaced wholesale.
const maxRedactDepth = 10

// piiKeyFragments are matched as lowercase substrings of payload keys.
// Matching keys lose their values at any nesting depth; everything else,
// including the overall structure, is preserved so operators can triage a
// dead letter without seeing caller data.
var piiKeyFragments = []string{
	"phone", "caller", "callee", "msisdn",
	"name", "email", "address",
	"text", "transcript", "content", "message", "summary", "notes",
	"card", "iban", "account", "billing", "payment_method",
	"recording", "media", "audio",
}

// Redact returns a deep copy of payload with PII-bearing values replaced
// by the redaction marker. The input is never mutated.
func Redact(payload map[string]any) map[string]any {
	if len(payload) == 0 {
		return map[string]any{}
	}
	return redactMap(payload, 0)
}

func redactMap(source map[string]any, depth int) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if isPIIKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactValue(value, depth)
	}
	return target
}

func redactValue(value any, depth int) any {
	if depth >= maxRedactDepth {
		return RedactedValue
	}
	switch typed := value.(type) {
	case map[string]any:
		return redactMap(typed, depth+1)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactValue(typed[i], depth+1)
		}
		return out
	default:
		return value
	}
}

func isPIIKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range piiKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
