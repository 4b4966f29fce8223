package v1

import (
	"io"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddr(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"79.144.65.173", "79.144.65.173"},
		{" 79.144.65.173 ", "79.144.65.173"},
		{"\"79.144.65.173\"", "79.144.65.173"},
		{"79.144.65.173:443", "79.144.65.173"},
		{"\"79.144.65.173:1234\"", "79.144.65.173"},
		{"2001:db8::1", "2001:db8::1"},
		{"[2001:db8::1]", "2001:db8::1"},
		{"[2001:db8::1]:8443", "2001:db8::1"},
		{"fe80::1%eth0", "fe80::1"},
		{"::ffff:203.0.113.9", "203.0.113.9"},
		{"not-an-ip", ""},
		{"   ", ""},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			addr, ok := parseAddr(tc.raw)
			if tc.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.want, addr.String())
		})
	}
}

func TestPreferredIP(t *testing.T) {
	assert.Equal(t, "203.0.113.20", preferredIP([]string{"2001:db8::1", "203.0.113.20"}))
	assert.Equal(t, "198.51.100.7", preferredIP([]string{"192.168.1.10", "10.0.0.5", "::1", "198.51.100.7"}))
	assert.Equal(t, "2001:db8::2", preferredIP([]string{"2001:db8::2"}))
	assert.Empty(t, preferredIP([]string{"", "   ", "not-an-ip", "0.0.0.0"}))
}

func TestIsPublicUnmapsIPv4(t *testing.T) {
	assert.False(t, isPublic(netip.MustParseAddr("::ffff:192.168.1.5")))
	assert.True(t, isPublic(netip.MustParseAddr("::ffff:8.8.8.8")))
	assert.False(t, isPublic(netip.MustParseAddr("127.0.0.1")))
	assert.False(t, isPublic(netip.MustParseAddr("::")))
}

func TestForwardedFor(t *testing.T) {
	got := forwardedFor(`for=192.0.2.60;proto=http;by=203.0.113.43, For="[2001:db8:cafe::17]:4711"`)
	assert.Equal(t, []string{"192.0.2.60", `"[2001:db8:cafe::17]:4711"`}, got)
}

func TestClientIPHeaderPrecedence(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(clientIP(c))
	})

	resolve := func(headers map[string]string) string {
		req := httptest.NewRequest("GET", "/", nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	assert.Equal(t, "203.0.113.7", resolve(map[string]string{
		"X-Forwarded-For": "10.0.0.1, 203.0.113.7",
		"X-Real-IP":       "198.51.100.1",
	}))
	assert.Equal(t, "198.51.100.1", resolve(map[string]string{
		"X-Forwarded-For": "10.0.0.1",
		"X-Real-IP":       "198.51.100.1",
	}))
	assert.Equal(t, "192.0.2.60", resolve(map[string]string{
		"Forwarded": "for=192.0.2.60;proto=https",
	}))
	assert.Equal(t, loopbackIP, resolve(nil), "local test traffic falls back to loopback")
}
