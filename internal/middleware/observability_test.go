package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"decryptrecovery/internal/metrics"
	"decryptrecovery/internal/tracing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entriesWithMessage(hook *test.Hook, message string) []*logrus.Entry {
	var out []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == message {
			out = append(out, e)
		}
	}
	return out
}

func TestObservabilityMiddleware(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	handler := ObservabilityMiddleware(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := tracing.GetRequestInfo(r.Context())
		assert.NotEmpty(t, info.RequestID)
		assert.NotEmpty(t, info.TraceID)
		_, _ = w.Write([]byte("test response"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/observability-test", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.RemoteAddr = "192.168.1.100:12345"
	before := metrics.GetRegistry().CounterValue("http_requests_total", map[string]string{"method": "GET", "endpoint": "/observability-test"})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "test response", w.Body.String())
	after := metrics.GetRegistry().CounterValue("http_requests_total", map[string]string{"method": "GET", "endpoint": "/observability-test"})
	assert.Equal(t, before+1, after)

	completed := entriesWithMessage(hook, "HTTP request completed")
	require.Len(t, completed, 1)
	assert.Equal(t, logrus.InfoLevel, completed[0].Level)
	assert.Equal(t, 200, completed[0].Data["status_code"])
	assert.Equal(t, "192.168.1.100", completed[0].Data["remote_ip"])
	assert.Equal(t, int64(len("test response")), completed[0].Data["size_bytes"])
}

func TestObservabilityMiddleware_RouteLabel(t *testing.T) {
	logger, _ := test.NewNullLogger()
	route := func(*http.Request) string { return "/v1/placeholders/{id}" }
	handler := ObservabilityMiddleware(logger, route)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	labels := map[string]string{"method": "GET", "endpoint": "/v1/placeholders/{id}"}
	before := metrics.GetRegistry().CounterValue("http_requests_total", labels)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/placeholders/abc", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/placeholders/def", nil))

	assert.Equal(t, before+2, metrics.GetRegistry().CounterValue("http_requests_total", labels))
}

func TestObservabilityMiddleware_ErrorStatus(t *testing.T) {
	tests := []struct {
		status int
		level  logrus.Level
	}{
		{http.StatusNotFound, logrus.WarnLevel},
		{http.StatusInternalServerError, logrus.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			logger, hook := test.NewNullLogger()
			handler := ObservabilityMiddleware(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/error", nil))

			assert.Equal(t, tt.status, w.Code)
			completed := entriesWithMessage(hook, "HTTP request completed")
			require.Len(t, completed, 1)
			assert.Equal(t, tt.level, completed[0].Level)
		})
	}
}

func TestPipelineObservabilityMiddleware(t *testing.T) {
	logger, hook := test.NewNullLogger()
	status := http.StatusAccepted
	handler := PipelineObservabilityMiddleware(logger, "failure")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	events := map[string]string{"type": "failure"}
	errorsLabels := map[string]string{"type": "failure", "status_code": "400"}
	beforeEvents := metrics.GetRegistry().CounterValue("pipeline_events_total", events)
	beforeErrors := metrics.GetRegistry().CounterValue("pipeline_event_errors_total", errorsLabels)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/decryption/failures", nil))
	assert.Empty(t, entriesWithMessage(hook, "Pipeline event not processed"))

	status = http.StatusBadRequest
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/decryption/failures", nil))

	assert.Equal(t, beforeEvents+2, metrics.GetRegistry().CounterValue("pipeline_events_total", events))
	assert.Equal(t, beforeErrors+1, metrics.GetRegistry().CounterValue("pipeline_event_errors_total", errorsLabels))
	require.Len(t, entriesWithMessage(hook, "Pipeline event not processed"), 1)
}

func TestResponseWrapper(t *testing.T) {
	w := httptest.NewRecorder()
	wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

	wrapper.WriteHeader(http.StatusCreated)
	wrapper.WriteHeader(http.StatusInternalServerError)
	n, err := wrapper.Write([]byte("test data"))

	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, http.StatusCreated, wrapper.statusCode, "first status wins")
	assert.Equal(t, int64(9), wrapper.responseSize)
	assert.Same(t, w, wrapper.Unwrap())

	_, _, err = wrapper.Hijack()
	assert.Error(t, err, "recorder cannot be hijacked")
}

func TestMiddleware_ConcurrentRequests(t *testing.T) {
	logger, _ := test.NewNullLogger()
	handler := ObservabilityMiddleware(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	labels := map[string]string{"method": "GET", "endpoint": "/concurrent"}
	before := metrics.GetRegistry().CounterValue("http_requests_total", labels)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/concurrent", nil))
		}()
	}
	wg.Wait()

	assert.Equal(t, before+20, metrics.GetRegistry().CounterValue("http_requests_total", labels))
}

func TestObservabilityMiddleware_TraceIDNotAllZeros(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var traceID string
	handler := ObservabilityMiddleware(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = tracing.GetRequestInfo(r.Context()).TraceID
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/trace", nil))

	assert.Len(t, traceID, 32)
	assert.NotEqual(t, strings.Repeat("0", 32), traceID)
}

func TestDetailedLoggingMiddleware_DisabledBelowDebug(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.InfoLevel)

	handler := DetailedLoggingMiddleware(logger, DefaultDetailedLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/decryption/failures", nil))

	assert.Empty(t, hook.AllEntries())
}

func TestDetailedLoggingMiddleware_MasksPipelinePayload(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	config := DefaultDetailedLoggingConfig()
	config.LogRequestBody = true
	config.LogResponseBody = true
	config.LogResponseHeaders = true

	payload := `{"plaintext":"meet at noon","sender":"+15551234567","groupId":"group-7f3a","timestamp":1714816800000}`
	var seenByHandler string
	handler := DetailedLoggingMiddleware(logger, config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seenByHandler = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Signature", "sha256=abc")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"body": "meet at noon"})
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/decryption/successes", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", "sha256=secret")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, payload, seenByHandler, "body must be restored for the handler")

	requests := entriesWithMessage(hook, "Detailed request logging")
	require.Len(t, requests, 1)
	body, ok := requests[0].Data["request_body"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "[12 bytes]", body["plaintext"])
	assert.Equal(t, "+*******4567", body["sender"])
	assert.Equal(t, "******7f3a", body["groupId"])
	headers := requests[0].Data["request_headers"].(map[string]string)
	assert.Equal(t, "***MASKED***", headers["X-Signature"])

	responses := entriesWithMessage(hook, "Detailed response logging")
	require.Len(t, responses, 1)
	assert.Equal(t, http.StatusOK, responses[0].Data["status_code"])
	respBody := responses[0].Data["response_body"].(map[string]interface{})
	assert.Equal(t, "[12 bytes]", respBody["body"])
	assert.Equal(t, "***MASKED***", responses[0].Data["response_headers"].(map[string]string)["X-Signature"])
}

func TestDetailedLoggingMiddleware_SkipEndpoints(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	handler := DetailedLoggingMiddleware(logger, DefaultDetailedLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for _, path := range []string{"/health", "/metrics", "/v1/events"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Empty(t, hook.AllEntries())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/threads/t/timeline", nil))
	assert.Len(t, hook.AllEntries(), 1)
}

func TestDetailedLoggingMiddleware_LargeAndNonTextBodies(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	config := DefaultDetailedLoggingConfig()
	config.LogRequestBody = true
	config.MaxBodySize = 10

	handler := DetailedLoggingMiddleware(logger, config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	large := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"plaintext":"far too long for the limit"}`))
	large.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), large)

	binary := httptest.NewRequest(http.MethodPost, "/x", bytes.NewReader([]byte{0x01, 0x02}))
	binary.Header.Set("Content-Type", "application/octet-stream")
	handler.ServeHTTP(httptest.NewRecorder(), binary)

	for _, e := range entriesWithMessage(hook, "Detailed request logging") {
		assert.NotContains(t, e.Data, "request_body")
	}
}

func TestMaskBody_NonJSON(t *testing.T) {
	assert.Equal(t, "[5 bytes]", maskBody([]byte("hello")))
}

func TestIsSensitiveHeader(t *testing.T) {
	sensitive := DefaultDetailedLoggingConfig().SensitiveHeaders
	assert.True(t, isSensitiveHeader("X-Signature", sensitive))
	assert.True(t, isSensitiveHeader("AUTHORIZATION", sensitive))
	assert.False(t, isSensitiveHeader("Content-Type", sensitive))
}

func TestShouldLogBody(t *testing.T) {
	assert.True(t, shouldLogBody("application/json; charset=utf-8"))
	assert.True(t, shouldLogBody("text/plain"))
	assert.False(t, shouldLogBody("application/octet-stream"))
	assert.False(t, shouldLogBody(""))
}
