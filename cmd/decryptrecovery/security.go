package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"

	"decryptrecovery/internal/config"
	"decryptrecovery/internal/errors"
)

// SignatureHeader carries "sha256=<hex hmac of the body>".
const SignatureHeader = "X-Signature"

// verifySignature reads the request body and checks its HMAC against the
// shared secret. Without a secret every body is accepted, except in
// production.
func verifySignature(r *http.Request, secretKey string, signatureHeaderName string) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to read request body").
			WithUserMessage("request body could not be read")
	}
	r.Body = io.NopCloser(bytes.NewBuffer(body))

	if secretKey == "" {
		if config.IsProduction() {
			return nil, errors.NewAuthError("webhook secret is required in production mode")
		}
		return body, nil
	}

	if err := checkSignature(r.Header.Get(signatureHeaderName), signatureHeaderName, secretKey, body); err != nil {
		return nil, err
	}
	return body, nil
}

// verifyRequestSignature authenticates requests whose body alone does not
// identify them, such as reads. The HMAC covers "METHOD\nREQUEST-URI\nBODY"
// so a signature for one thread cannot be replayed against another.
func verifyRequestSignature(r *http.Request, secretKey string, signatureHeaderName string) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to read request body").
			WithUserMessage("request body could not be read")
	}
	r.Body = io.NopCloser(bytes.NewBuffer(body))

	if secretKey == "" {
		if config.IsProduction() {
			return errors.NewAuthError("webhook secret is required in production mode")
		}
		return nil
	}
	return checkSignature(r.Header.Get(signatureHeaderName), signatureHeaderName, secretKey,
		canonicalRequest(r.Method, r.URL.RequestURI(), body))
}

func checkSignature(signatureHeader, signatureHeaderName, secretKey string, payload []byte) error {
	if signatureHeader == "" {
		return errors.NewAuthError(fmt.Sprintf("missing signature header: %s", signatureHeaderName))
	}

	parts := strings.SplitN(signatureHeader, "=", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "sha256" {
		return errors.NewAuthError(fmt.Sprintf("invalid signature format in header %s", signatureHeaderName))
	}

	if !hmac.Equal([]byte(signBody(secretKey, payload)), []byte(strings.ToLower(parts[1]))) {
		return errors.NewAuthError("signature mismatch")
	}
	return nil
}

func canonicalRequest(method, requestURI string, body []byte) []byte {
	payload := make([]byte, 0, len(method)+len(requestURI)+len(body)+2)
	payload = append(payload, method...)
	payload = append(payload, '\n')
	payload = append(payload, requestURI...)
	payload = append(payload, '\n')
	return append(payload, body...)
}

func signBody(secretKey string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
