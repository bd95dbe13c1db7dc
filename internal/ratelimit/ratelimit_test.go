package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestTokenBucketRefill(t *testing.T) {
	l := NewTokenBucket(2, 60)
	now := time.Now()
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewTokenBucket(1, 1).GinMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestThrottle(t *testing.T) {
	th := NewThrottle(time.Second)
	now := time.Now()
	th.now = func() time.Time { return now }

	assert.True(t, th.Allow(1))
	assert.False(t, th.Allow(1))
	assert.True(t, th.Allow(2))

	now = now.Add(1100 * time.Millisecond)
	assert.True(t, th.Allow(1))
}

func TestThrottleDisabled(t *testing.T) {
	th := NewThrottle(0)
	assert.True(t, th.Allow(1))
	assert.True(t, th.Allow(1))
}
