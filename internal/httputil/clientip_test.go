package httputil

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientAddress(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "first forwarded hop",
			headers:    map[string]string{"X-Forwarded-For": " 198.51.100.7 , 203.0.113.9"},
			remoteAddr: "10.0.0.1:5555",
			want:       "198.51.100.7",
		},
		{
			name:       "garbage forwarded hop is skipped",
			headers:    map[string]string{"X-Forwarded-For": "unknown, 203.0.113.9"},
			remoteAddr: "10.0.0.1:5555",
			want:       "203.0.113.9",
		},
		{
			name:       "forwarded ipv6",
			headers:    map[string]string{"X-Forwarded-For": "2001:db8::1"},
			remoteAddr: "10.0.0.1:5555",
			want:       "2001:db8::1",
		},
		{
			name:       "real ip header",
			headers:    map[string]string{"X-Real-IP": "192.0.2.44"},
			remoteAddr: "10.0.0.1:5555",
			want:       "192.0.2.44",
		},
		{
			name:       "remote addr with port",
			remoteAddr: "192.0.2.1:1234",
			want:       "192.0.2.1",
		},
		{
			name:       "bracketed ipv6 remote addr",
			remoteAddr: "[2001:db8::2]:443",
			want:       "2001:db8::2",
		},
		{
			name:       "unparseable remote addr is returned as is",
			remoteAddr: "pipe",
			want:       "pipe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/health", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientAddress(r))
		})
	}
}
