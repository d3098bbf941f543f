package httputil

import (
	"encoding/json"
	"net/http"

	"decryptrecovery/internal/errors"
	"decryptrecovery/internal/tracing"
)

// WriteJSON writes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes err as the standard error body. The status follows the
// error code.
func WriteError(w http.ResponseWriter, r *http.Request, err error) int {
	status := errors.HTTPStatusCode(err)
	_ = WriteJSON(w, status, errors.ToHTTPResponse(err, tracing.GetRequestID(r.Context())))
	return status
}

// LimitBody caps the number of bytes a handler may read from the request.
func LimitBody(w http.ResponseWriter, r *http.Request, maxBytes int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
}

// DecodeJSON unmarshals a request body. Unknown fields are ignored so that
// pipeline producers can send richer envelopes.
func DecodeJSON(body []byte, dst interface{}) error {
	if len(body) == 0 {
		return errors.NewValidationError("body", "", "request body is empty")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid JSON body").
			WithUserMessage("invalid JSON body")
	}
	return nil
}
