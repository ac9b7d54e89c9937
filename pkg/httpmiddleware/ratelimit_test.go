package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitedHandler(cfg RateLimitConfig) http.Handler {
	return RateLimit(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func hit(h http.Handler, remoteAddr string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_BudgetThenRefusal(t *testing.T) {
	h := limitedHandler(RateLimitConfig{Max: 3, Window: time.Minute})

	for i := range 3 {
		w := hit(h, "10.1.0.7:40000", nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d should be within budget", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := hit(h, "10.1.0.7:40000", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(http.StatusTooManyRequests), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimit_RemainingCountsDown(t *testing.T) {
	h := limitedHandler(RateLimitConfig{Max: 5, Window: time.Minute})

	first := hit(h, "10.1.0.8:40000", nil)
	second := hit(h, "10.1.0.8:40000", nil)
	assert.Equal(t, "4", first.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "3", second.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_CallersAreIndependent(t *testing.T) {
	h := limitedHandler(RateLimitConfig{Max: 1, Window: time.Minute})

	assert.Equal(t, http.StatusOK, hit(h, "10.1.0.1:1111", nil).Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.1.0.2:1111", nil).Code)
	// The first caller's budget is spent regardless of source port.
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.1.0.1:2222", nil).Code)
}

func TestRateLimit_BucketsByForwardedClient(t *testing.T) {
	h := limitedHandler(RateLimitConfig{Max: 1, Window: time.Minute})
	forwarded := map[string]string{"X-Forwarded-For": "198.51.100.9, 10.0.0.1"}

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1111", forwarded).Code)
	// Same end client through a different proxy hop shares the bucket.
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.2:2222", forwarded).Code)
}

func TestRateLimit_BucketsByAPIKey(t *testing.T) {
	h := limitedHandler(RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		KeyFunc: func(r *http.Request) string {
			return r.Header.Get("api_key")
		},
	})

	memberA := map[string]string{"api_key": "member-a"}
	memberB := map[string]string{"api_key": "member-b"}

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1111", memberA).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.2:2222", memberA).Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.3:3333", memberB).Code)
}

func TestLimiter_WindowRotationRestoresBudget(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	now := time.Now().Truncate(time.Minute)

	_, _, ok := l.take("member-a", now)
	require.True(t, ok)
	_, _, ok = l.take("member-a", now.Add(time.Second))
	require.False(t, ok)

	// Two full windows later the prior window carries no weight.
	_, _, ok = l.take("member-a", now.Add(2*time.Minute))
	assert.True(t, ok)
}

func TestLimiter_SweepDropsIdleBuckets(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 10, Window: time.Minute})
	now := time.Now()

	l.take("idle-member", now)
	l.take("active-member", now)
	l.take("active-member", now.Add(90*time.Second))

	l.sweep(now.Add(2 * time.Minute))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.buckets, "idle-member")
	assert.Contains(t, l.buckets, "active-member")
}
