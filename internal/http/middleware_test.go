package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/accounts/internal/logger"
)

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expected   string
	}{
		{
			name:     "single forwarded IP",
			headers:  map[string]string{"X-Forwarded-For": "192.168.1.1"},
			expected: "192.168.1.1",
		},
		{
			name:     "first forwarded hop",
			headers:  map[string]string{"X-Forwarded-For": "203.0.113.1  ,  198.51.100.1"},
			expected: "203.0.113.1",
		},
		{
			name:     "forwarded wins over real ip",
			headers:  map[string]string{"X-Forwarded-For": "203.0.113.1", "X-Real-IP": "192.168.1.100"},
			expected: "203.0.113.1",
		},
		{
			name:     "real ip",
			headers:  map[string]string{"X-Real-IP": "192.168.1.100"},
			expected: "192.168.1.100",
		},
		{
			name:       "IPv4 with port",
			remoteAddr: "192.168.1.1:54321",
			expected:   "192.168.1.1",
		},
		{
			name:       "IPv6 with port",
			remoteAddr: "[2001:db8::1]:54321",
			expected:   "2001:db8::1",
		},
		{
			name:       "no port",
			remoteAddr: "192.168.1.1",
			expected:   "192.168.1.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.remoteAddr != "" {
				r.RemoteAddr = tt.remoteAddr
			}
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			require.Equal(t, tt.expected, ExtractClientIP(r))
		})
	}
}

func TestClientIPMiddleware(t *testing.T) {
	var capturedIP string
	handler := ClientIPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedIP = ClientIPFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.1")

	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "203.0.113.1", capturedIP)
}

func TestClientIPMiddleware_requestLog(t *testing.T) {
	var buf bytes.Buffer
	var handlerLine string

	handler := logger.Requests(zerolog.New(&buf))(ClientIPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside")
		handlerLine = buf.String()
		w.WriteHeader(http.StatusNoContent)
	})))

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.1")
	handler.ServeHTTP(httptest.NewRecorder(), r)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, handlerLine, `"client_ip":"203.0.113.1"`)

	var completion map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &completion))
	require.Equal(t, "http request", completion["message"])
	require.Equal(t, "203.0.113.1", completion["client_ip"])
	require.EqualValues(t, http.StatusNoContent, completion["status"])
}

func TestClientIPMiddleware_withoutLogger(t *testing.T) {
	handler := ClientIPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, zerolog.Disabled, zerolog.Ctx(r.Context()).GetLevel())
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestClientIPFromContext_missing(t *testing.T) {
	require.Empty(t, ClientIPFromContext(context.Background()))
}
