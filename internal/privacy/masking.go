package privacy

import (
	"fmt"
	"strings"

	"decryptrecovery/internal/constants"
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits
// Example: "+1234567890" -> "+******7890"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	keep := constants.DefaultPhoneMaskLength
	if strings.HasPrefix(phone, "+") {
		if len(phone) == 1 {
			return phone
		}
		if len(phone) <= keep+1 {
			return "+" + strings.Repeat("*", len(phone)-1)
		}
		return "+" + strings.Repeat("*", len(phone)-keep-1) + phone[len(phone)-keep:]
	}

	return maskString(phone, keep)
}

// MaskServiceAddress masks a sender address. Phone numbers keep their last
// digits; account UUIDs keep their first group so log lines can be correlated.
// Example: "a1b2c3d4-e5f6-4711-8899-aabbccddeeff" -> "a1b2c3d4-****"
func MaskServiceAddress(address string) string {
	if address == "" {
		return ""
	}
	if strings.HasPrefix(address, "+") {
		return MaskPhoneNumber(address)
	}
	if len(address) == 36 && strings.Count(address, "-") == 4 {
		return address[:constants.DefaultIDVisibleChars] + "-****"
	}
	return maskString(address, 4)
}

// MaskGroupID masks a group identifier, keeping the last 4 characters
func MaskGroupID(groupID string) string {
	if groupID == "" {
		return ""
	}
	return maskString(groupID, 4)
}

// MaskBody never logs plaintext, only its size.
// Example: "hello" -> "[5 bytes]"
func MaskBody(body string) string {
	return fmt.Sprintf("[%d bytes]", len(body))
}

// MaskID shortens an opaque identifier to its first characters
// Example: "6ba7b810-9dad-11d1-80b4-00c04fd430c8" -> "6ba7b810…"
func MaskID(id string) string {
	if len(id) <= constants.DefaultIDVisibleChars {
		return id
	}
	return id[:constants.DefaultIDVisibleChars] + "…"
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, isString := v.(string)
		if !isString {
			masked[k] = v
			continue
		}
		switch k {
		case "sender", "peer", "source", "sourceNumber", "sourceUuid", "phone":
			masked[k] = MaskServiceAddress(s)
		case "group_id", "groupId", "group":
			masked[k] = MaskGroupID(s)
		case "body", "plaintext", "replacement_body":
			masked[k] = MaskBody(s)
		default:
			masked[k] = v
		}
	}

	return masked
}
