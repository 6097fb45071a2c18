package mcp

import (
	"encoding/json"
	"strings"
)

const maskedValue = "***MASKED***"

var sensitiveMarkers = []string{"key", "token", "secret", "password"}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// MaskArguments decodes args and replaces every value whose key name looks
// credential-bearing. Nested objects are masked recursively. Arguments that
// are absent or not a JSON object come back as an empty map so error
// payloads never leak the raw bytes.
func MaskArguments(args json.RawMessage) map[string]any {
	var m map[string]any
	if len(args) == 0 || json.Unmarshal(args, &m) != nil || m == nil {
		return map[string]any{}
	}
	return maskMap(m)
}

func maskMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if isSensitiveKey(k) {
			out[k] = maskedValue
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = maskMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// AuditRecord summarizes a tool call for error payloads and logs. Args are
// already masked.
type AuditRecord struct {
	Tool string         `json:"tool"`
	User string         `json:"user"`
	Args map[string]any `json:"args"`
}

// NewAuditRecord builds an audit entry for a call. An empty user is recorded
// as "anonymous".
func NewAuditRecord(tool, user string, args json.RawMessage) AuditRecord {
	if user == "" {
		user = "anonymous"
	}
	return AuditRecord{Tool: tool, User: user, Args: MaskArguments(args)}
}
