package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimitByIPBlocksAfterBurst(t *testing.T) {
	t.Parallel()

	cfg := RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2}
	handler := Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
		RateLimitByIP(cfg),
	)

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, do("10.0.0.1:1234"))
	require.Equal(t, http.StatusOK, do("10.0.0.1:1234"))
	require.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:1234"))

	// Independent bucket per client.
	require.Equal(t, http.StatusOK, do("10.0.0.2:1234"))
}

func TestIPKeyExtractorPrefersForwardedFor(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:9999"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	require.Equal(t, "203.0.113.7", IPKeyExtractor(req))

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "198.51.100.4")
	require.Equal(t, "198.51.100.4", IPKeyExtractor(req))

	req.Header.Del("X-Real-IP")
	require.Equal(t, "127.0.0.1", IPKeyExtractor(req))
}
