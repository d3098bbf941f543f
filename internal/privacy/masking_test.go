package privacy

import (
	"testing"
)

func TestMaskPhoneNumber(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"+1234567890", "+******7890"},
		{"+447712345678", "+********5678"},
		{"1234567890", "******7890"},

		{"", ""},
		{"+", "+"},
		{"+123", "+***"},
		{"+1234", "+****"},
		{"+12345", "+*2345"},
		{"1234", "****"},
	}

	for _, test := range tests {
		result := MaskPhoneNumber(test.input)
		if result != test.expected {
			t.Errorf("MaskPhoneNumber(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}

func TestMaskServiceAddress(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"+15551234567", "+*******4567"},
		{"a1b2c3d4-e5f6-4711-8899-aabbccddeeff", "a1b2c3d4-****"},
		{"something-else", "**********else"},
	}

	for _, test := range tests {
		result := MaskServiceAddress(test.input)
		if result != test.expected {
			t.Errorf("MaskServiceAddress(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}

func TestMaskBody(t *testing.T) {
	if got := MaskBody("secret text"); got != "[11 bytes]" {
		t.Errorf("MaskBody = %q", got)
	}
	if got := MaskBody(""); got != "[0 bytes]" {
		t.Errorf("MaskBody(empty) = %q", got)
	}
}

func TestMaskID(t *testing.T) {
	if got := MaskID("6ba7b810-9dad-11d1-80b4-00c04fd430c8"); got != "6ba7b810…" {
		t.Errorf("MaskID = %q", got)
	}
	if got := MaskID("short"); got != "short" {
		t.Errorf("MaskID(short) = %q", got)
	}
}

func TestMaskString(t *testing.T) {
	tests := []struct {
		input    string
		keep     int
		expected string
	}{
		{"", 4, ""},
		{"abc", 4, "***"},
		{"abcdef", 4, "**cdef"},
		{"abcdef", 0, "******"},
	}

	for _, test := range tests {
		result := maskString(test.input, test.keep)
		if result != test.expected {
			t.Errorf("maskString(%q, %d) = %q, expected %q", test.input, test.keep, result, test.expected)
		}
	}
}

func TestMaskSensitiveFields(t *testing.T) {
	if MaskSensitiveFields(nil) != nil {
		t.Error("expected nil for nil input")
	}

	fields := map[string]interface{}{
		"sender":         "+15551234567",
		"group_id":       "Z3JvdXAtaWQ=",
		"body":           "hello",
		"placeholder_id": "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		"count":          3,
	}

	masked := MaskSensitiveFields(fields)

	if masked["sender"] != "+*******4567" {
		t.Errorf("sender not masked: %v", masked["sender"])
	}
	if masked["group_id"] != "********aWQ=" {
		t.Errorf("group_id not masked: %v", masked["group_id"])
	}
	if masked["body"] != "[5 bytes]" {
		t.Errorf("body not masked: %v", masked["body"])
	}
	if masked["placeholder_id"] != fields["placeholder_id"] {
		t.Errorf("placeholder_id should pass through: %v", masked["placeholder_id"])
	}
	if masked["count"] != 3 {
		t.Errorf("non-string value changed: %v", masked["count"])
	}
	if fields["sender"] != "+15551234567" {
		t.Error("input map was modified")
	}
}
