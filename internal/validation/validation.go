package validation

import (
	"fmt"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"decryptrecovery/internal/constants"
	"decryptrecovery/internal/errors"

	"github.com/gofrs/uuid/v5"
)

// ValidatePhoneNumber validates an E.164 phone number ("+" followed by digits)
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return errors.New(errors.ErrCodeInvalidInput, "phone number cannot be empty")
	}

	if !strings.HasPrefix(phone, "+") {
		return errors.New(errors.ErrCodeInvalidInput, "phone number must start with +")
	}
	digits := phone[1:]

	if len(digits) < constants.MinPhoneNumberDigits {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number must be at least %d digits", constants.MinPhoneNumberDigits))
	}

	if len(digits) > constants.MaxPhoneNumberDigits {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number too long (max %d digits)", constants.MaxPhoneNumberDigits))
	}

	for _, char := range digits {
		if !unicode.IsDigit(char) {
			return errors.New(errors.ErrCodeInvalidInput, "phone number must contain only digits")
		}
	}

	return nil
}

// NormalizeServiceAddress accepts an account UUID or an E.164 number and
// returns its canonical form. UUIDs are lower-cased so that the same sender
// always produces the same match key.
func NormalizeServiceAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", errors.New(errors.ErrCodeInvalidInput, "service address cannot be empty")
	}

	if strings.HasPrefix(address, "+") {
		if err := ValidatePhoneNumber(address); err != nil {
			return "", err
		}
		return address, nil
	}

	id, err := uuid.FromString(address)
	if err != nil {
		return "", errors.New(errors.ErrCodeInvalidInput, "service address is neither a UUID nor a phone number")
	}
	if id.IsNil() {
		return "", errors.New(errors.ErrCodeInvalidInput, "service address cannot be the nil UUID")
	}
	return id.String(), nil
}

// ValidateGroupID validates an optional group identifier
func ValidateGroupID(groupID string) error {
	if groupID == "" {
		return nil
	}

	if len(groupID) > constants.MaxGroupIDLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("group ID too long (max %d characters)", constants.MaxGroupIDLength))
	}

	for _, char := range groupID {
		if unicode.IsControl(char) || unicode.IsSpace(char) {
			return errors.New(errors.ErrCodeInvalidInput, "group ID contains invalid characters")
		}
	}

	return nil
}

// ValidateOriginalTimestamp validates a sender-asserted timestamp in milliseconds
func ValidateOriginalTimestamp(ts int64) error {
	if ts <= 0 {
		return errors.New(errors.ErrCodeInvalidInput, "original timestamp must be positive")
	}
	return nil
}

// ValidateBody validates recovered plaintext before it is stored
func ValidateBody(body string) error {
	if len(body) > constants.MaxBodyLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("body too long (max %d bytes)", constants.MaxBodyLength))
	}
	if !utf8.ValidString(body) {
		return errors.New(errors.ErrCodeInvalidInput, "body is not valid UTF-8")
	}
	return nil
}

// SanitizeBody makes a decrypted body storable. Invalid UTF-8 sequences
// become U+FFFD and bodies over MaxBodyLength are cut at a rune boundary.
// The second result reports whether the body changed.
func SanitizeBody(body string) (string, bool) {
	clean := strings.ToValidUTF8(body, "\uFFFD")
	if len(clean) > constants.MaxBodyLength {
		cut := constants.MaxBodyLength
		for cut > 0 && !utf8.RuneStart(clean[cut]) {
			cut--
		}
		clean = clean[:cut]
	}
	return clean, clean != body
}

// ValidateFailureReason validates the optional diagnostic reason
func ValidateFailureReason(reason string) error {
	return ValidateStringLength(reason, "failure reason", 0, constants.MaxFailureReasonLen)
}

// ValidateThreadID validates an opaque thread identifier
func ValidateThreadID(threadID string) error {
	if threadID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "thread ID cannot be empty")
	}
	if len(threadID) > constants.MaxThreadIDLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("thread ID too long (max %d characters)", constants.MaxThreadIDLength))
	}
	if _, err := uuid.FromString(threadID); err != nil {
		return errors.New(errors.ErrCodeInvalidInput, "thread ID is not a UUID")
	}
	return nil
}

// ValidateHTTPRequestSize validates incoming HTTP request size
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength < -1 {
		return errors.New(errors.ErrCodeInvalidInput, "invalid content length")
	}

	if r.ContentLength > maxSizeBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes))
	}

	return nil
}

// ValidateStringLength validates string length against bounds
func ValidateStringLength(value, fieldName string, minLength, maxLength int) error {
	if len(value) < minLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too short (min %d characters)", fieldName, minLength))
	}

	if len(value) > maxLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too long (max %d characters)", fieldName, maxLength))
	}

	return nil
}

// ValidateNumericRange validates numeric values against bounds
func ValidateNumericRange(value int, fieldName string, min, max int) error {
	if value < min {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too small (min %d)", fieldName, min))
	}

	if value > max {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max %d)", fieldName, max))
	}

	return nil
}

// ValidateTimeout validates timeout values
func ValidateTimeout(timeoutSec int, fieldName string) error {
	if timeoutSec < 1 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s must be at least 1 second", fieldName))
	}

	if timeoutSec > 3600 { // Max 1 hour
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max 3600 seconds)", fieldName))
	}

	return nil
}

// ValidateRecoveryWindow validates the recovery window in seconds
func ValidateRecoveryWindow(windowSec int) error {
	return ValidateNumericRange(windowSec, "recovery window", constants.MinRecoveryWindowSec, constants.MaxRecoveryWindowSec)
}

// ValidateRetentionDays validates data retention period
func ValidateRetentionDays(days int) error {
	if days < 1 {
		return errors.New(errors.ErrCodeInvalidInput, "retention days must be at least 1")
	}

	if days > 3650 { // Max 10 years
		return errors.New(errors.ErrCodeInvalidInput, "retention days too large (max 3650)")
	}

	return nil
}
