package clientip_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/saasbilling/pkg/clientip"
	"github.com/dmitrymomot/saasbilling/pkg/logger"
)

func TestResolverFromRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		headers    []string
		reqHeaders map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "203.0.113.7:51234",
			want:       "203.0.113.7",
		},
		{
			name:       "untrusted header is ignored",
			reqHeaders: map[string]string{"X-Forwarded-For": "198.51.100.1"},
			remoteAddr: "203.0.113.7:51234",
			want:       "203.0.113.7",
		},
		{
			name:       "first trusted header wins",
			headers:    []string{"cf-connecting-ip", "X-Forwarded-For"},
			reqHeaders: map[string]string{"CF-Connecting-IP": "198.51.100.1", "X-Forwarded-For": "198.51.100.2"},
			remoteAddr: "10.0.0.1:80",
			want:       "198.51.100.1",
		},
		{
			name:       "forwarded list skips garbage",
			headers:    []string{"X-Forwarded-For"},
			reqHeaders: map[string]string{"X-Forwarded-For": "unknown, 198.51.100.9, 10.0.0.1"},
			remoteAddr: "10.0.0.1:80",
			want:       "198.51.100.9",
		},
		{
			name:       "invalid header falls back",
			headers:    clientip.DefaultHeaders,
			reqHeaders: map[string]string{"X-Real-IP": "not-an-ip"},
			remoteAddr: "10.0.0.1:80",
			want:       "10.0.0.1",
		},
		{
			name:       "ipv4 mapped ipv6 is unmapped",
			headers:    []string{"X-Real-IP"},
			reqHeaders: map[string]string{"X-Real-IP": "::ffff:198.51.100.3"},
			want:       "198.51.100.3",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
		{
			name:       "bare remote addr",
			remoteAddr: "192.0.2.10",
			want:       "192.0.2.10",
		},
		{
			name:       "nothing valid",
			remoteAddr: "pipe",
			want:       "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.reqHeaders {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientip.New(tt.headers...).FromRequest(req))
		})
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	var got string
	h := clientip.New("X-Real-IP").Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = clientip.FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "198.51.100.4")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "198.51.100.4", got)
	assert.Empty(t, clientip.FromContext(context.Background()))
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(logger.NewLogHandlerDecorator(
		slog.NewJSONHandler(&buf, nil),
		clientip.LoggerExtractor(),
	))

	log.InfoContext(clientip.WithIP(context.Background(), "192.0.2.1"), "hit")
	require.Contains(t, buf.String(), `"client_ip":"192.0.2.1"`)

	buf.Reset()
	log.InfoContext(context.Background(), "miss")
	assert.NotContains(t, buf.String(), "client_ip")
}
