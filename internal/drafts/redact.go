package drafts

import "strings"

// Redacted replaces the value of any known-sensitive field before a draft
// is persisted.
const Redacted = "[REDACTED]"

// sensitiveKeys are field names whose values are never persisted in drafts,
// even encrypted ones.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
	"ssn":           {},
	"card_number":   {},
	"cardnumber":    {},
	"credit_card":   {},
	"cvv":           {},
}

// redact walks the decoded draft value and blanks sensitive fields in
// place, matching on field name and on card-number-shaped string values.
func redact(v any) {
	switch value := v.(type) {
	case map[string]any:
		for k, item := range value {
			if _, ok := sensitiveKeys[strings.ToLower(k)]; ok {
				value[k] = Redacted
				continue
			}
			if s, ok := item.(string); ok && looksLikeCardNumber(s) {
				value[k] = Redacted
				continue
			}
			redact(item)
		}
	case []any:
		for _, item := range value {
			redact(item)
		}
	}
}

// looksLikeCardNumber reports whether s is a 13–19 digit run, allowing the
// usual space/dash grouping. Best-effort, kept deliberately dumb.
func looksLikeCardNumber(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ' || r == '-':
		default:
			return false
		}
	}
	return digits >= 13 && digits <= 19
}
