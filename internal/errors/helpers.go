package errors

import (
	"fmt"
	"net/http"
)

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewMalformedEnvelopeError reports a failed envelope that cannot yield a
// placeholder, typically because no sender address could be resolved.
func NewMalformedEnvelopeError(reason string, cause error) *AppError {
	return Wrap(cause, ErrCodeMalformedEnvelope, "malformed envelope: "+reason).
		WithContext("reason", reason).
		WithUserMessage("Envelope is missing a resolvable sender")
}

// NewDuplicateMatchError reports more than one pending placeholder for a
// single replacement key. chosen is the record that won the tie-break.
func NewDuplicateMatchError(key string, chosen string, others []string) *AppError {
	return New(ErrCodeDuplicateMatchAnomaly, fmt.Sprintf("%d pending placeholders share one match key", len(others)+1)).
		WithContext("match_key", key).
		WithContext("chosen_placeholder", chosen).
		WithContext("duplicate_placeholders", others)
}

// NewStaleTransitionError reports a transition rejected by the optimistic
// eligibility check.
func NewStaleTransitionError(placeholderID, attempted string) *AppError {
	return New(ErrCodeStaleTransition, "placeholder is no longer pending").
		WithContext("placeholder_id", placeholderID).
		WithContext("attempted", attempted)
}

// NewInvalidTransitionError reports a state change the eligibility state
// machine does not allow.
func NewInvalidTransitionError(from, to string) *AppError {
	return New(ErrCodeInvalidTransition, fmt.Sprintf("transition %s -> %s is not allowed", from, to)).
		WithContext("from", from).
		WithContext("to", to)
}

// NewAuthError creates an authentication error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Authentication failed")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case ErrCodeMalformedEnvelope:
		return http.StatusUnprocessableEntity
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeStaleTransition, ErrCodeInvalidTransition:
		return http.StatusConflict
	case ErrCodeTimeout:
		return http.StatusRequestTimeout
	case ErrCodeDatabaseConnection, ErrCodeDatabaseQuery, ErrCodeDatabaseMigration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the standardized HTTP error body
type HTTPErrorResponse struct {
	Error struct {
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Context interface{} `json:"context,omitempty"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// publicContextKeys lists the AppError context keys safe to return to callers.
var publicContextKeys = map[string]bool{
	"field":          true,
	"resource":       true,
	"identifier":     true,
	"reason":         true,
	"placeholder_id": true,
	"operation":      true,
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{
		RequestID: requestID,
	}

	appErr, ok := AsAppError(err)
	if !ok {
		response.Error.Code = ErrCodeInternalError
		response.Error.Message = GetUserMessage(err)
		return response
	}

	response.Error.Code = appErr.Code
	response.Error.Message = GetUserMessage(err)
	if appErr.UserMessage == "" && HTTPStatusCode(err) < http.StatusInternalServerError {
		// Client errors are safe to describe.
		response.Error.Message = appErr.Message
	}
	publicContext := make(map[string]interface{})
	for k, v := range appErr.Context {
		if publicContextKeys[k] {
			publicContext[k] = v
		}
	}
	if len(publicContext) > 0 {
		response.Error.Context = publicContext
	}
	return response
}
