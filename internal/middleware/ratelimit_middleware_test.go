package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type fakeLimiter struct {
	allowed   bool
	locked    bool
	lockTTL   time.Duration
	lockCalls []time.Duration
}

func (f *fakeLimiter) Allow(ctx context.Context, identityID int64, endpoint string, maxRequests int64, window time.Duration) (bool, error) {
	return f.allowed, nil
}

func (f *fakeLimiter) IsAccountTemporarilyLocked(ctx context.Context, identityID int64) (bool, time.Duration, error) {
	return f.locked, f.lockTTL, nil
}

func (f *fakeLimiter) LockAccount(ctx context.Context, identityID int64, duration time.Duration) error {
	f.locked = true
	f.lockTTL = duration
	f.lockCalls = append(f.lockCalls, duration)
	return nil
}

func rateLimitedRouter(limiter Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/buy",
		func(c *gin.Context) { c.Set("identity_id", int64(7)) },
		RateLimitMiddleware(limiter, "purchase", 10, time.Minute),
		func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) },
	)
	return r
}

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	limiter := &fakeLimiter{allowed: true}
	r := rateLimitedRouter(limiter)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/buy", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if len(limiter.lockCalls) != 0 {
		t.Error("no lock while under the limit")
	}
}

func TestRateLimit_OverLimitLocksAccount(t *testing.T) {
	limiter := &fakeLimiter{allowed: false}
	r := rateLimitedRouter(limiter)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/buy", nil))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if len(limiter.lockCalls) != 1 || limiter.lockCalls[0] != time.Minute {
		t.Errorf("lock calls = %v, want one lock for the window", limiter.lockCalls)
	}

	// The lock now short-circuits the next request without another count.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/buy", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429 while locked", w.Code)
	}
	if len(limiter.lockCalls) != 1 {
		t.Errorf("lock calls = %d, want no re-lock while already locked", len(limiter.lockCalls))
	}
}
