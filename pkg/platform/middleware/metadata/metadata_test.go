package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"enrollment/pkg/requestcontext"
)

func TestMiddlewareHandler(t *testing.T) {
	tests := []struct {
		name           string
		headers        map[string]string
		remoteAddr     string
		trustedProxies []string
		expectedIP     string
	}{
		{
			name:       "ignores XFF when no trusted proxies",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1"},
			remoteAddr: "192.168.1.1:12345",
			expectedIP: "192.168.1.1",
		},
		{
			name:           "trusts XFF when request from trusted proxy",
			headers:        map[string]string{"X-Forwarded-For": "203.0.113.1, 10.0.0.2"},
			remoteAddr:     "10.0.0.1:12345",
			trustedProxies: []string{"10.0.0.0/8"},
			expectedIP:     "203.0.113.1",
		},
		{
			name:           "trusts X-Real-IP from trusted proxy",
			headers:        map[string]string{"X-Real-IP": "198.51.100.7"},
			remoteAddr:     "10.0.0.1:12345",
			trustedProxies: []string{"10.0.0.0/8"},
			expectedIP:     "198.51.100.7",
		},
		{
			name:           "rejects unparseable XFF",
			headers:        map[string]string{"X-Forwarded-For": "not-an-ip"},
			remoteAddr:     "10.0.0.1:12345",
			trustedProxies: []string{"10.0.0.0/8"},
			expectedIP:     "10.0.0.1",
		},
		{
			name:           "rejects oversized XFF",
			headers:        map[string]string{"X-Forwarded-For": strings.Repeat("1", MaxXFFHeaderLength+1)},
			remoteAddr:     "10.0.0.1:12345",
			trustedProxies: []string{"10.0.0.0/8"},
			expectedIP:     "10.0.0.1",
		},
		{
			name:       "strips brackets from ipv6 remote address",
			remoteAddr: "[2001:db8::1]:443",
			expectedIP: "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var capturedCtx context.Context
			testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				capturedCtx = r.Context()
				w.WriteHeader(http.StatusOK)
			})

			var prefixes []netip.Prefix
			for _, cidr := range tt.trustedProxies {
				prefix, _ := netip.ParsePrefix(cidr)
				prefixes = append(prefixes, prefix)
			}
			handler := NewMiddleware(&Config{TrustedProxies: prefixes}).Handler(testHandler)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/enrollments", nil)
			req.RemoteAddr = tt.remoteAddr
			for key, value := range tt.headers {
				req.Header.Set(key, value)
			}

			handler.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.expectedIP, requestcontext.ClientIP(capturedCtx))
		})
	}
}

func TestClientIPFlowsIntoActor(t *testing.T) {
	ctx := requestcontext.WithClientIP(context.Background(), "192.168.1.1")
	ctx = requestcontext.WithActor(ctx, requestcontext.ActorPublic)

	actor, ok := requestcontext.ActorFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, "192.168.1.1", actor.IP)
}

func TestDeviceDescriptionIsStored(t *testing.T) {
	var device string
	handler := NewMiddleware(nil).Handler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		device = requestcontext.Device(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/enrollments", strings.NewReader("{}"))
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, device, "Firefox")
}
