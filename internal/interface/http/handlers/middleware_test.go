package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestFrom(remote, xff, xri string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/rankings", nil)
	r.RemoteAddr = remote
	if xff != "" {
		r.Header.Set("X-Forwarded-For", xff)
	}
	if xri != "" {
		r.Header.Set("X-Real-IP", xri)
	}
	return r
}

func TestParseTrustedProxies(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.0.2.1 ", "", "bogus", "::ffff:198.51.100.9"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"bogus"`)

	assert.True(t, proxies.Trusts("10.20.30.40"))
	assert.True(t, proxies.Trusts("192.0.2.1"))
	assert.False(t, proxies.Trusts("192.0.2.2"))
	assert.True(t, proxies.Trusts("198.51.100.9"))
	assert.False(t, proxies.Trusts("not-an-ip"))
}

func TestClientIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"192.0.2.0/24"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		proxies *TrustedProxies
		req     *http.Request
		want    string
	}{
		{"no proxies configured", nil, requestFrom("203.0.113.7:1234", "10.0.0.1", "10.0.0.2"), "203.0.113.7"},
		{"untrusted peer", trusted, requestFrom("203.0.113.7:1234", "10.0.0.1", ""), "203.0.113.7"},
		{"trusted peer, single hop", trusted, requestFrom("192.0.2.5:1234", "198.51.100.1", ""), "198.51.100.1"},
		{"spoofed head of chain", trusted, requestFrom("192.0.2.5:1234", "1.2.3.4, 198.51.100.1, 192.0.2.6", ""), "198.51.100.1"},
		{"all hops trusted", trusted, requestFrom("192.0.2.5:1234", "192.0.2.7, 192.0.2.6", ""), "192.0.2.7"},
		{"real ip header", trusted, requestFrom("192.0.2.5:1234", "", "198.51.100.3"), "198.51.100.3"},
		{"no headers", trusted, requestFrom("192.0.2.5:1234", "", ""), "192.0.2.5"},
		{"remote without port", nil, requestFrom("203.0.113.7", "", ""), "203.0.113.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.proxies.ClientIP(tt.req))
		})
	}
}

func TestClientRateLimiter(t *testing.T) {
	l := NewClientRateLimiter(2)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
	assert.Equal(t, 2, l.Len())
}
