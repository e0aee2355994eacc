package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arturoeanton/witness-runtime/engine"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, e *echo.Echo, method, path, ip string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = ip + ":40000"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newTestServer(t *testing.T, config *engine.RateLimitConfig) *echo.Echo {
	t.Helper()
	rl := NewRateLimiter(config, nil)
	t.Cleanup(rl.Close)

	e := echo.New()
	e.Use(Middleware(config, rl))
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	e.POST("/api/v1/alerts", ok)
	e.GET("/api/v1/contacts", ok)
	e.GET("/health", ok)
	return e
}

func TestMiddleware_RejectsAfterLimit(t *testing.T) {
	config := &engine.RateLimitConfig{
		Enabled:          true,
		MaxRequests:      3,
		WindowMs:         60000,
		RetryAfterHeader: true,
		ErrorMessage:     "Too many attempts",
	}
	e := newTestServer(t, config)

	for i := 0; i < 3; i++ {
		rec := serve(t, e, http.MethodPost, "/api/v1/alerts", "10.0.0.1")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, []string{"2", "1", "0"}[i], rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := serve(t, e, http.MethodPost, "/api/v1/alerts", "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Too many attempts", body["error"])
	assert.Equal(t, "RateLimited", body["kind"])
	assert.Equal(t, float64(60), body["retry_after"])
}

func TestMiddleware_KeysByOperationAndIP(t *testing.T) {
	config := &engine.RateLimitConfig{Enabled: true, MaxRequests: 1, WindowMs: 60000}
	e := newTestServer(t, config)

	assert.Equal(t, http.StatusOK, serve(t, e, http.MethodPost, "/api/v1/alerts", "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(t, e, http.MethodPost, "/api/v1/alerts", "10.0.0.1").Code)

	// another client, another operation
	assert.Equal(t, http.StatusOK, serve(t, e, http.MethodPost, "/api/v1/alerts", "10.0.0.2").Code)
	assert.Equal(t, http.StatusOK, serve(t, e, http.MethodGet, "/api/v1/contacts", "10.0.0.1").Code)
}

func TestMiddleware_Exclusions(t *testing.T) {
	config := &engine.RateLimitConfig{
		Enabled:       true,
		MaxRequests:   1,
		WindowMs:      60000,
		ExcludedPaths: "/health",
		ExcludedIPs:   "192.168.0.0/16",
	}
	e := newTestServer(t, config)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(t, e, http.MethodGet, "/health", "10.0.0.1").Code)
		assert.Equal(t, http.StatusOK, serve(t, e, http.MethodPost, "/api/v1/alerts", "192.168.4.4").Code)
	}
}

func TestMiddleware_Disabled(t *testing.T) {
	config := &engine.RateLimitConfig{Enabled: false, MaxRequests: 1}
	e := newTestServer(t, config)

	for i := 0; i < 5; i++ {
		rec := serve(t, e, http.MethodPost, "/api/v1/alerts", "10.0.0.1")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestClientIP(t *testing.T) {
	testCases := []struct {
		name       string
		trusted    string
		headers    map[string]string
		remoteAddr string
		expected   string
	}{
		{"spoofed real ip is ignored", "", map[string]string{"X-Real-IP": "1.2.3.4"}, "9.9.9.9:1", "9.9.9.9"},
		{"spoofed forwarded is ignored", "", map[string]string{"X-Forwarded-For": "5.6.7.8"}, "9.9.9.9:1", "9.9.9.9"},
		{"untrusted peer", "10.0.0.0/8", map[string]string{"X-Forwarded-For": "5.6.7.8"}, "9.9.9.9:1", "9.9.9.9"},
		{"trusted proxy chain", "10.0.0.0/8", map[string]string{"X-Forwarded-For": "5.6.7.8, 10.0.0.1"}, "10.0.0.7:1", "5.6.7.8"},
		{"spoofed prefix behind proxy", "10.0.0.0/8", map[string]string{"X-Forwarded-For": "1.1.1.1, 5.6.7.8"}, "10.0.0.7:1", "5.6.7.8"},
		{"single trusted address", "10.0.0.7", map[string]string{"X-Forwarded-For": " 5.6.7.8 "}, "10.0.0.7:1", "5.6.7.8"},
		{"ipv4 remote", "", nil, "9.9.9.9:1234", "9.9.9.9"},
		{"ipv6 remote", "", nil, "[::1]:1234", "::1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			extractor, err := NewIPExtractor(tc.trusted)
			require.NoError(t, err)

			e := echo.New()
			e.IPExtractor = extractor
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			c := e.NewContext(req, httptest.NewRecorder())

			assert.Equal(t, tc.expected, ClientIP(c))
		})
	}
}

func TestClientIP_NoExtractorUsesPeer(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "9.9.9.9:1"
	req.Header.Set("X-Forwarded-For", "5.6.7.8")
	req.Header.Set("X-Real-IP", "1.2.3.4")

	assert.Equal(t, "9.9.9.9", ClientIP(e.NewContext(req, httptest.NewRecorder())))
}

func TestNewIPExtractor_Invalid(t *testing.T) {
	_, err := NewIPExtractor("10.0.0.0/33")
	assert.Error(t, err)
	_, err = NewIPExtractor("proxy.internal")
	assert.Error(t, err)
}

func TestMiddleware_SpoofedHeadersShareTheWindow(t *testing.T) {
	config := &engine.RateLimitConfig{Enabled: true, MaxRequests: 1, WindowMs: 60000}
	e := newTestServer(t, config)

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", nil)
		req.RemoteAddr = "9.9.9.9:40000"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("2.2.2.2"))
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 0, retryAfterSeconds(0))
	assert.Equal(t, 1, retryAfterSeconds(1))
	assert.Equal(t, 60, retryAfterSeconds(59990*1000*1000))
}
